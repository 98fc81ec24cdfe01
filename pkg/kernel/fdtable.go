package kernel

import (
	"golang.org/x/sync/errgroup"

	"github.com/kokominji/PINTOS-VM/pkg/kernel/fs"
)

// fdChunk is the number of descriptor slots one simulated fd-table page
// grows by, standing in for the reference kernel's page_aligned fd array
// growth. Fd 0 and 1 are the STDIN/STDOUT singletons and are never closed
// by Remove, matching the reference table's reserved low descriptors.
const fdChunk = 64

// FDTable is a process's open-file table: a growable slice of fs.File,
// slot 0 reserved for STDIN and slot 1 for STDOUT.
type FDTable struct {
	slots []fs.File
}

// NewFDTable creates a table with stdin/stdout already installed.
func NewFDTable(stdin, stdout fs.File) *FDTable {
	t := &FDTable{slots: make([]fs.File, fdChunk)}
	t.slots[0] = stdin
	t.slots[1] = stdout
	return t
}

// Set installs f at the lowest free slot at or above 2, growing the table
// by one chunk if none is free, matching the source's set_fd.
func (t *FDTable) Set(f fs.File) int {
	for i := 2; i < len(t.slots); i++ {
		if t.slots[i] == nil {
			t.slots[i] = f
			return i
		}
	}
	old := t.slots
	t.slots = make([]fs.File, len(old)+fdChunk)
	copy(t.slots, old)
	idx := len(old)
	t.slots[idx] = f
	return idx
}

// Get returns the File at fd, or nil if fd is free or out of range.
func (t *FDTable) Get(fd int) fs.File {
	if fd < 0 || fd >= len(t.slots) {
		return nil
	}
	return t.slots[fd]
}

// Remove closes and frees fd. STDIN/STDOUT (0, 1) are never actually
// closed since they are process-wide singletons; only user fds above 1
// have Close called on them. Returns -1 if fd was already free, matching
// the source's fallthrough-returns-(-1) behavior on a double remove.
func (t *FDTable) Remove(fd int) int {
	f := t.Get(fd)
	if f == nil {
		return -1
	}
	if fd >= 2 {
		f.Close()
	}
	t.slots[fd] = nil
	return 0
}

// RemoveIfDuplicated closes fd and instead returns the index of another fd
// already referring to the same underlying stream, if one exists, so a
// caller holding onto a duplicate descriptor does not observe its stream
// vanish out from under it. Returns fd unchanged if no duplicate exists.
func (t *FDTable) RemoveIfDuplicated(fd int) int {
	f := t.Get(fd)
	if f == nil {
		return -1
	}
	for i, g := range t.slots {
		if i == fd || g == nil {
			continue
		}
		if g.SameFile(f) {
			t.slots[fd] = nil
			return i
		}
	}
	return fd
}

// clone duplicates the table's slot references for fork. Descriptors share
// the underlying fs.File rather than getting an independently-seeked
// duplicate stream, since the fs.File abstraction has no Dup primitive and
// no scenario in this kernel depends on post-fork seek independence.
func (t *FDTable) clone() *FDTable {
	c := &FDTable{slots: make([]fs.File, len(t.slots))}
	copy(c.slots, t.slots)
	return c
}

// CloseAll closes every open user fd (2 and above), matching process_exit's
// fd-table teardown. Closes fan out through an errgroup; a diskFile's Close
// takes the store's in-process mutex, so those closes still run one at a
// time.
func (t *FDTable) CloseAll() {
	var g errgroup.Group
	for i := 2; i < len(t.slots); i++ {
		f := t.slots[i]
		if f == nil {
			continue
		}
		t.slots[i] = nil
		g.Go(func() error {
			f.Close()
			return nil
		})
	}
	g.Wait()
}
