// Package fs is the uniform stream abstraction the reference kernel calls
// "struct File": a single interface covering a real on-disk stream, STDIN,
// and STDOUT, so the syscall layer and fd table never need to special-case
// which kind of stream a descriptor refers to.
package fs

import (
	"errors"
	"io"
	"sync"
)

// ErrClosed reports an operation on a closed File. The console and disk
// files in this package do not return it: they keep serving calls after
// Close.
var ErrClosed = errors.New("fs: file closed")

// File is the stream abstraction backing a file descriptor.
type File interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Seek(pos int64) error
	Tell() (int64, error)
	Size() (int64, error)
	Close() error
	// SameFile reports whether other refers to the same underlying stream
	// identity, used by remove_if_duplicated to coalesce duplicate fds.
	SameFile(other File) bool
	// SetDenyWrite toggles write-denial while the file backs a running
	// executable image (file_deny_write/file_allow_write).
	SetDenyWrite(deny bool)
}

// console wraps an io.Reader or io.Writer (STDIN/STDOUT) as a File. There
// is exactly one STDIN and one STDOUT singleton per kernel instance; they
// must never be closed by remove_fd, only have their fd-table slot nulled.
type console struct {
	mu   sync.Mutex
	name string
	r    io.Reader
	w    io.Writer
}

// NewConsoleReader wraps r (typically os.Stdin, or the pty slave when the
// boot CLI runs interactively) as the STDIN singleton.
func NewConsoleReader(r io.Reader) File {
	return &console{name: "stdin", r: r}
}

// NewConsoleWriter wraps w (typically os.Stdout) as the STDOUT singleton.
func NewConsoleWriter(w io.Writer) File {
	return &console{name: "stdout", w: w}
}

func (c *console) Read(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return 0, errors.New("fs: console not readable")
	}
	return c.r.Read(buf)
}

func (c *console) Write(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return 0, errors.New("fs: console not writable")
	}
	return c.w.Write(buf)
}

func (c *console) Seek(int64) error      { return errors.New("fs: console is not seekable") }
func (c *console) Tell() (int64, error)  { return 0, errors.New("fs: console is not seekable") }
func (c *console) Size() (int64, error)  { return 0, errors.New("fs: console has no size") }
func (c *console) Close() error          { return nil }
func (c *console) SetDenyWrite(bool)     {}
func (c *console) SameFile(other File) bool {
	o, ok := other.(*console)
	return ok && o == c
}
