package kernel

import (
	"testing"

	"github.com/kokominji/PINTOS-VM/pkg/kernel/fs"
)

type fakeFile struct {
	closed bool
	id     int
}

func (f *fakeFile) Read([]byte) (int, error)  { return 0, nil }
func (f *fakeFile) Write([]byte) (int, error) { return 0, nil }
func (f *fakeFile) Seek(int64) error          { return nil }
func (f *fakeFile) Tell() (int64, error)      { return 0, nil }
func (f *fakeFile) Size() (int64, error)      { return 0, nil }
func (f *fakeFile) Close() error              { f.closed = true; return nil }
func (f *fakeFile) SetDenyWrite(bool)         {}
func (f *fakeFile) SameFile(other fs.File) bool {
	o, ok := other.(*fakeFile)
	return ok && o.id == f.id
}

func TestFDTableSetAndGet(t *testing.T) {
	stdin, stdout := &fakeFile{id: 0}, &fakeFile{id: 1}
	tbl := NewFDTable(stdin, stdout)

	a := &fakeFile{id: 2}
	fd := tbl.Set(a)
	if fd != 2 {
		t.Fatalf("first Set() = %d, want 2", fd)
	}
	if tbl.Get(fd) != a {
		t.Fatalf("Get(%d) did not return the file just set", fd)
	}
}

func TestFDTableGrowsPastInitialChunk(t *testing.T) {
	tbl := NewFDTable(&fakeFile{id: 0}, &fakeFile{id: 1})
	var lastFD int
	for i := 0; i < fdChunk+5; i++ {
		lastFD = tbl.Set(&fakeFile{id: 100 + i})
	}
	if lastFD < fdChunk {
		t.Fatalf("last fd %d should have forced table growth past %d", lastFD, fdChunk)
	}
	if tbl.Get(lastFD) == nil {
		t.Fatalf("Get(%d) after growth returned nil", lastFD)
	}
}

func TestFDTableRemoveTwiceReturnsError(t *testing.T) {
	tbl := NewFDTable(&fakeFile{id: 0}, &fakeFile{id: 1})
	f := &fakeFile{id: 2}
	fd := tbl.Set(f)

	if got := tbl.Remove(fd); got != 0 {
		t.Fatalf("first Remove() = %d, want 0", got)
	}
	if !f.closed {
		t.Fatal("Remove() did not close the underlying file")
	}
	if got := tbl.Remove(fd); got != -1 {
		t.Fatalf("second Remove() = %d, want -1", got)
	}
}

func TestFDTableRemoveNeverClosesStdio(t *testing.T) {
	stdin := &fakeFile{id: 0}
	tbl := NewFDTable(stdin, &fakeFile{id: 1})
	tbl.Remove(0)
	if stdin.closed {
		t.Fatal("Remove(0) closed the STDIN singleton")
	}
}

func TestFDTableRemoveIfDuplicated(t *testing.T) {
	tbl := NewFDTable(&fakeFile{id: 0}, &fakeFile{id: 1})
	shared := &fakeFile{id: 42}
	a := tbl.Set(shared)
	b := tbl.Set(shared)

	got := tbl.RemoveIfDuplicated(a)
	if got != b {
		t.Fatalf("RemoveIfDuplicated(%d) = %d, want duplicate fd %d", a, got, b)
	}
	if tbl.Get(a) != nil {
		t.Fatalf("fd %d should have been freed after coalescing onto duplicate", a)
	}
}
