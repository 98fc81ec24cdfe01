package fs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
)

// ErrNotExist is returned by Open/Remove for a path the store has no entry
// for. ErrExist is returned by Create when the path is already taken.
var (
	ErrNotExist = errors.New("fs: no such file")
	ErrExist    = errors.New("fs: file already exists")
)

// Diskstore is the out-of-scope "real filesystem" reduced to an in-memory
// map of named byte streams, the supplement this repository adds since the
// distilled spec treats filesys_* as fully out of scope. Entry contents live
// only in memory; nothing is written to dir. Create additionally takes an
// interprocess flock on a per-name ".lock" file under dir, retrying the
// acquisition with exponential backoff for up to two seconds.
type Diskstore struct {
	dir string

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	data   []byte
	opens  int
	denied bool
}

// NewDiskstore creates a store backed by dir, creating dir if necessary.
func NewDiskstore(dir string) (*Diskstore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Diskstore{dir: dir, entries: make(map[string]*entry)}, nil
}

func (d *Diskstore) backingPath(name string) string {
	return filepath.Join(d.dir, name+".lock")
}

func (d *Diskstore) withLock(name string, fn func() error) error {
	fl := flock.New(d.backingPath(name))
	op := func() error {
		locked, err := fl.TryLock()
		if err != nil {
			return err
		}
		if !locked {
			return errors.New("fs: backing file locked")
		}
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Second
	if err := backoff.Retry(op, b); err != nil {
		return err
	}
	defer fl.Unlock()
	return fn()
}

// Create adds an empty named entry, matching filesys_create.
func (d *Diskstore) Create(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[name]; ok {
		return ErrExist
	}
	var err error
	lockErr := d.withLock(name, func() error {
		d.entries[name] = &entry{}
		return nil
	})
	if lockErr != nil {
		err = lockErr
	}
	return err
}

// Seed preloads name with content, used by boot to install builtin program
// images (the "echo" binary the fork-exec-wait scenario execs) without
// requiring a host filesystem round trip.
func (d *Diskstore) Seed(name string, content []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[name] = &entry{data: append([]byte(nil), content...)}
}

// Remove deletes name, matching filesys_remove; Pintos semantics allow
// removing a file that is still open, so this does not check opens.
func (d *Diskstore) Remove(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[name]; !ok {
		return ErrNotExist
	}
	delete(d.entries, name)
	return nil
}

// Open returns a File handle over name's bytes, matching filesys_open.
func (d *Diskstore) Open(name string) (File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[name]
	if !ok {
		return nil, ErrNotExist
	}
	e.opens++
	return &diskFile{store: d, name: name, entry: e}, nil
}

type diskFile struct {
	mu    sync.Mutex
	store *Diskstore
	name  string
	entry *entry
	pos   int64
}

func (f *diskFile) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store.mu.Lock()
	data := f.entry.data
	f.store.mu.Unlock()
	if f.pos >= int64(len(data)) {
		return 0, nil
	}
	n := copy(buf, data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *diskFile) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if f.entry.denied {
		return 0, errors.New("fs: write denied while file backs a running image")
	}
	end := f.pos + int64(len(buf))
	if end > int64(len(f.entry.data)) {
		grown := make([]byte, end)
		copy(grown, f.entry.data)
		f.entry.data = grown
	}
	copy(f.entry.data[f.pos:end], buf)
	f.pos = end
	return len(buf), nil
}

func (f *diskFile) Seek(pos int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pos < 0 {
		return errors.New("fs: negative seek")
	}
	f.pos = pos
	return nil
}

func (f *diskFile) Tell() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos, nil
}

func (f *diskFile) Size() (int64, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return int64(len(f.entry.data)), nil
}

func (f *diskFile) Close() error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.entry.opens--
	return nil
}

func (f *diskFile) SameFile(other File) bool {
	o, ok := other.(*diskFile)
	return ok && o.entry == f.entry
}

func (f *diskFile) SetDenyWrite(deny bool) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.entry.denied = deny
}

// ReadAll is a convenience used by the ELF loader to read an entire backing
// image without going through the fd-style Read/Seek protocol.
func ReadAll(f File) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 4096)
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if n == 0 || err != nil {
			break
		}
	}
	return buf.Bytes(), nil
}
