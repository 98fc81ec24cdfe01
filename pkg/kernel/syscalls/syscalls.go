// Package syscalls is the dispatcher between a user process's syscall
// instruction and the kernel's process/fd/file implementations. The table
// is built the way pkg/sentry/syscalls builds its Linux syscall table: a
// flat, numerically-indexed set of {Name, Fn, SupportLevel, Note} records
// constructed through Supported/PartiallySupported/Error helpers, so every
// entry self-documents how complete it is and new numbers can be added the
// same way the original fourteen were.
package syscalls

import (
	"fmt"

	"github.com/kokominji/PINTOS-VM/pkg/kernel"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/fs"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/klog"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/usermem"
)

// SupportLevel mirrors the reference sentry's SupportFull/SupportPartial/
// SupportUnimplemented tiers.
type SupportLevel int

const (
	SupportFull SupportLevel = iota
	SupportPartial
	SupportUnimplemented
)

// Args is the SysV AMD64 syscall argument triple: rdi, rsi, rdx.
type Args [3]uintptr

// Fn is a syscall handler body: given the calling process, its raw
// arguments, it returns the value to load into rax.
type Fn func(p *kernel.Process, args Args) (uintptr, error)

// Syscall is one dispatch table entry.
type Syscall struct {
	Name         string
	Fn           Fn
	SupportLevel SupportLevel
	Note         string
}

// Supported returns a fully-implemented syscall record.
func Supported(name string, fn Fn) Syscall {
	return Syscall{Name: name, Fn: fn, SupportLevel: SupportFull, Note: "fully supported"}
}

// PartiallySupported returns a syscall record with a known limitation,
// still dispatched to fn.
func PartiallySupported(name string, fn Fn, note string) Syscall {
	return Syscall{Name: name, Fn: fn, SupportLevel: SupportPartial, Note: note}
}

// Error returns a syscall record whose Fn always fails with err, for
// numbers that are recognized but deliberately not implemented.
func Error(name string, err error, note string) Syscall {
	return Syscall{
		Name: name,
		Fn: func(*kernel.Process, Args) (uintptr, error) {
			return ^uintptr(0), err
		},
		SupportLevel: SupportUnimplemented,
		Note:         fmt.Sprintf("%s; returns %q", note, err.Error()),
	}
}

// Numbers 0-13 are the reference kernel's original table; 14-15 supplement
// it with the priority-donation engine's scheduling-policy introspection,
// grounded on sys_sched.go's SchedGetparam/SchedSetscheduler shape.
const (
	SysHalt = iota
	SysExit
	SysFork
	SysExec
	SysWait
	SysCreate
	SysRemove
	SysOpen
	SysFilesize
	SysRead
	SysWrite
	SysSeek
	SysTell
	SysClose
	SysSchedGetparam
	SysSchedSetparam
)

// Table maps syscall numbers to their dispatch records. Store is the
// backing diskstore used by create/remove/open/exec.
func Table(store *fs.Diskstore) map[int]Syscall {
	return map[int]Syscall{
		SysHalt:     Supported("halt", haltHandler),
		SysExit:     Supported("exit", exitHandler),
		SysFork:     Supported("fork", forkHandler),
		SysExec:     Supported("exec", execHandler(store)),
		SysWait:     Supported("wait", waitHandler),
		SysCreate:   Supported("create", createHandler(store)),
		SysRemove:   Supported("remove", removeHandler(store)),
		SysOpen:     Supported("open", openHandler(store)),
		SysFilesize: Supported("filesize", filesizeHandler),
		SysRead:     Supported("read", readHandler),
		SysWrite:    Supported("write", writeHandler),
		SysSeek:     Supported("seek", seekHandler),
		SysTell:     Supported("tell", tellHandler),
		SysClose:    Supported("close", closeHandler),

		SysSchedGetparam: Supported("sched_getparam", schedGetparamHandler),
		SysSchedSetparam: Supported("sched_setparam", schedSetparamHandler),
	}
}

// Dispatch looks up num in table and runs it against p, returning the
// value to install in rax. An unrecognized number terminates the caller
// with exit status -1, matching "unknown numbers print a message and
// terminate the thread."
func Dispatch(table map[int]Syscall, p *kernel.Process, num int, args Args) uintptr {
	sys, ok := table[num]
	if !ok {
		klog.Warningf("kernel: unknown syscall number %d, terminating tid=%d", num, p.Thread().TID())
		p.Exit(-1)
		return ^uintptr(0)
	}
	rax, err := sys.Fn(p, args)
	if err != nil {
		klog.Debugf("kernel: syscall %q failed: %v", sys.Name, err)
	}
	return rax
}

// readCString copies a NUL-terminated user string starting at addr.
func readCString(mem *usermem.Space, addr uintptr) (string, error) {
	n, ok := mem.CheckString(addr, usermem.User)
	if !ok {
		return "", usermem.ErrPageFault
	}
	buf := make([]byte, n)
	if err := mem.CopyIn(addr, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func haltHandler(p *kernel.Process, _ Args) (uintptr, error) {
	klog.Infof("kernel: halt requested by tid=%d", p.Thread().TID())
	p.Exit(0)
	return 0, nil
}

func exitHandler(p *kernel.Process, args Args) (uintptr, error) {
	status := int(int32(args[0]))
	p.Exit(status)
	return uintptr(status), nil
}

func forkHandler(p *kernel.Process, args Args) (uintptr, error) {
	name, err := readCString(p.Mem(), args[0])
	if err != nil {
		return ^uintptr(0), err
	}
	tid, err := p.Fork(name, func(k *kernel.Kernel, child *kernel.Process) {
		// There is no saved register frame for the child to resume at
		// rax=0, so it re-enters the same Program the parent was running.
		// IsForkChild() is the child's replacement for "fork() returned
		// 0": a Program written to fork-then-exec checks it at the top
		// and takes the exec branch instead of forking again.
		status := child.RunCurrentProgram()
		child.Exit(status)
	})
	if err != nil {
		return ^uintptr(0), err
	}
	return uintptr(tid), nil
}

func execHandler(store *fs.Diskstore) Fn {
	return func(p *kernel.Process, args Args) (uintptr, error) {
		cmdline, err := readCString(p.Mem(), args[0])
		if err != nil {
			p.Exit(-1)
			return ^uintptr(0), err
		}
		if err := p.Exec(cmdline, store); err != nil {
			p.Exit(-1)
			return ^uintptr(0), err
		}
		return 0, nil
	}
}

func waitHandler(p *kernel.Process, args Args) (uintptr, error) {
	status := p.Wait(kernel.TID(int64(args[0])))
	return uintptr(int32(status)), nil
}

func createHandler(store *fs.Diskstore) Fn {
	return func(p *kernel.Process, args Args) (uintptr, error) {
		name, err := readCString(p.Mem(), args[0])
		if err != nil {
			return 0, err
		}
		if err := store.Create(name); err != nil {
			return 0, err
		}
		return 1, nil
	}
}

func removeHandler(store *fs.Diskstore) Fn {
	return func(p *kernel.Process, args Args) (uintptr, error) {
		name, err := readCString(p.Mem(), args[0])
		if err != nil {
			return 0, err
		}
		if err := store.Remove(name); err != nil {
			return 0, nil
		}
		return 1, nil
	}
}

func openHandler(store *fs.Diskstore) Fn {
	return func(p *kernel.Process, args Args) (uintptr, error) {
		name, err := readCString(p.Mem(), args[0])
		if err != nil {
			return ^uintptr(0), err
		}
		f, err := store.Open(name)
		if err != nil {
			return ^uintptr(0), nil
		}
		fd := p.FDs().Set(f)
		return uintptr(fd), nil
	}
}

func filesizeHandler(p *kernel.Process, args Args) (uintptr, error) {
	f := p.FDs().Get(int(args[0]))
	if f == nil {
		return ^uintptr(0), nil
	}
	size, err := f.Size()
	if err != nil {
		return ^uintptr(0), err
	}
	return uintptr(size), nil
}

func readHandler(p *kernel.Process, args Args) (uintptr, error) {
	fd, bufAddr, size := int(args[0]), args[1], int(args[2])
	f := p.FDs().Get(fd)
	if f == nil {
		return ^uintptr(0), nil
	}
	buf := make([]byte, size)
	n, err := f.Read(buf)
	if n > 0 {
		if cerr := p.Mem().CopyOut(bufAddr, buf[:n]); cerr != nil {
			return ^uintptr(0), cerr
		}
	}
	if err != nil {
		return uintptr(n), err
	}
	return uintptr(n), nil
}

func writeHandler(p *kernel.Process, args Args) (uintptr, error) {
	fd, bufAddr, size := int(args[0]), args[1], int(args[2])
	f := p.FDs().Get(fd)
	if f == nil {
		return 0, nil
	}
	buf := make([]byte, size)
	if err := p.Mem().CopyIn(bufAddr, buf); err != nil {
		return 0, err
	}
	n, err := f.Write(buf)
	return uintptr(n), err
}

func seekHandler(p *kernel.Process, args Args) (uintptr, error) {
	f := p.FDs().Get(int(args[0]))
	if f == nil {
		return 0, nil
	}
	return 0, f.Seek(int64(args[1]))
}

func tellHandler(p *kernel.Process, args Args) (uintptr, error) {
	f := p.FDs().Get(int(args[0]))
	if f == nil {
		return ^uintptr(0), nil
	}
	pos, err := f.Tell()
	return uintptr(pos), err
}

func closeHandler(p *kernel.Process, args Args) (uintptr, error) {
	return uintptr(p.FDs().Remove(int(args[0]))), nil
}

func schedGetparamHandler(p *kernel.Process, _ Args) (uintptr, error) {
	return uintptr(int32(p.Thread().K().GetPriority())), nil
}

func schedSetparamHandler(p *kernel.Process, args Args) (uintptr, error) {
	p.Thread().K().SetPriority(int(int32(args[0])))
	return 0, nil
}
