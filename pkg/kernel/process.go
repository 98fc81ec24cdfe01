package kernel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kokominji/PINTOS-VM/pkg/kernel/elf"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/fs"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/klog"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/pagealloc"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/usermem"
)

// Program is the Go stand-in for a loaded executable's entry point. There
// is no byte-code interpreter here to execute an ELF text section, so Exec
// validates and maps the real ELF header and PT_LOAD segments of the
// backing file (for realism and so load errors are caught exactly where
// load() would catch them) and then runs the Program registered under the
// same path, handing it argv the way _start would have received it in rdi
// and rsi.
type Program func(k *Kernel, p *Process, argv []string) int

var (
	programRegistryMu sync.Mutex
	programRegistry   = map[string]Program{}
)

// RegisterProgram installs fn as the entry point Exec runs for path.
func RegisterProgram(path string, fn Program) {
	programRegistryMu.Lock()
	defer programRegistryMu.Unlock()
	programRegistry[path] = fn
}

func lookupProgram(path string) (Program, bool) {
	programRegistryMu.Lock()
	defer programRegistryMu.Unlock()
	fn, ok := programRegistry[path]
	return fn, ok
}

// Process is the user-process supervisor's per-process state layered on
// top of a Thread: address space, fd table, and the wait/exit handshake
// semaphores the data model calls out alongside the bare TCB fields.
type Process struct {
	k      *Kernel
	thread *Thread
	parent *Process

	mu       sync.Mutex
	children []*childRecord

	fds  *FDTable
	mem  *usermem.Space
	pool *pagealloc.Pool

	execFile fs.File

	// program and argv record the Program this process is currently
	// running and the argv it was given, so a forked child can re-enter
	// the same executable image rather than sitting idle until its own
	// exec call (see RunCurrentProgram).
	program Program
	argv    []string

	// isForkChild is set on every process created by Fork. Since this
	// simulated kernel re-enters a Program from its top rather than
	// resuming a saved register frame, a Program that wants to behave
	// like a real post-fork child (typically: skip straight to its own
	// exec call instead of forking again) checks IsForkChild as the
	// sentinel a real child would get for free from fork() returning 0.
	isForkChild bool

	exitStatus int
	exited     bool

	waitSema *Semaphore // downed by a parent waiting on this process
	exitSema *Semaphore // downed by this process until its parent acknowledges
}

type childRecord struct {
	tid    TID
	proc   *Process
	waited bool
}

// NewRootProcess wraps an already-running kernel thread (normally the boot
// thread returned by New) as a user process with its own address space and
// an fd table seeded with stdin/stdout.
func NewRootProcess(k *Kernel, t *Thread, pool *pagealloc.Pool, stdin, stdout fs.File) *Process {
	p := &Process{
		k:        k,
		thread:   t,
		fds:      NewFDTable(stdin, stdout),
		mem:      usermem.NewSpace(),
		pool:     pool,
		waitSema: k.NewSemaphore(0),
		exitSema: k.NewSemaphore(0),
	}
	t.proc = p
	return p
}

// Thread returns the process's single thread; this kernel has no threads
// shared across a process, per the non-goals.
func (p *Process) Thread() *Thread { return p.thread }

// FDs returns the process's file-descriptor table.
func (p *Process) FDs() *FDTable { return p.fds }

// Mem returns the process's simulated user address space.
func (p *Process) Mem() *usermem.Space { return p.mem }

// IsForkChild reports whether p was created by Fork, the sentinel a
// re-entered Program checks in place of a real fork() call returning 0.
func (p *Process) IsForkChild() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isForkChild
}

// RunCurrentProgram re-invokes the Program this process last Exec'd with
// the argv it was last given. This is what a forked child's thread runs
// instead of sitting idle: since exec is a registered Go closure rather
// than a byte-code entry point, there is no saved instruction pointer for
// the child to resume at, so it restarts the same Program from the top,
// with IsForkChild now true, and relies on the Program checking that
// sentinel to take its post-fork branch (typically an immediate Exec)
// rather than forking again.
func (p *Process) RunCurrentProgram() int {
	p.mu.Lock()
	prog, argv := p.program, p.argv
	p.mu.Unlock()
	if prog == nil {
		return -1
	}
	return prog(p.k, p, argv)
}

// ExitStatus returns the status this process exited (or will exit) with.
func (p *Process) ExitStatus() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitStatus
}

// Fork creates a child process with a private copy of every one of p's
// mapped user pages and a copy of its fd table, then runs childFn as the
// child's own thread (the Go equivalent of the child's fork() call
// returning 0 and continuing execution, since there is no saved register
// frame here for a single closure to resume in two places at once). The
// parent's own "return value" is simply this call's normal Go return: the
// child's tid, or TIDError if the copy failed before the child thread ever
// started — the only way this kernel's fork can fail, since address-space
// and fd-table copying happen synchronously in the parent before the child
// thread is created, there is no asynchronous child-side setup for the
// parent to block on the way process_execute blocks on fork_sema.
func (p *Process) Fork(name string, childFn func(k *Kernel, child *Process)) (TID, error) {
	k := p.k

	childMem, err := p.mem.Clone(p.pool)
	if err != nil {
		return TIDError, err
	}

	p.mu.Lock()
	childFDs := p.fds.clone()
	p.mu.Unlock()

	p.mu.Lock()
	parentProgram, parentArgv := p.program, p.argv
	p.mu.Unlock()

	child := &Process{
		k:           k,
		parent:      p,
		fds:         childFDs,
		mem:         childMem,
		pool:        p.pool,
		program:     parentProgram,
		argv:        parentArgv,
		isForkChild: true,
		waitSema:    k.NewSemaphore(0),
		exitSema:    k.NewSemaphore(0),
	}

	rec := &childRecord{proc: child}
	p.mu.Lock()
	p.children = append(p.children, rec)
	p.mu.Unlock()

	child.thread = k.CreateThread(name, PriDefault, func(k *Kernel, t *Thread) {
		t.proc = child
		child.thread = t
		klog.Debugf("kernel: forked tid=%d from parent tid=%d", t.TID(), p.thread.TID())
		childFn(k, child)
		child.Exit(0)
	})
	rec.tid = child.thread.TID()

	return rec.tid, nil
}

// ensurePage maps a fresh zeroed page at base if none is mapped yet.
func ensurePage(mem *usermem.Space, pool *pagealloc.Pool, base uintptr) error {
	if _, err := mem.ReadByte(base); err == nil {
		return nil
	}
	pg, err := pool.Get()
	if err != nil {
		return err
	}
	return mem.Map(base, pg)
}

func loadSegment(mem *usermem.Space, pool *pagealloc.Pool, seg elf.Segment, data []byte) error {
	if seg.Memsz == 0 {
		return nil
	}
	const pageSize = uint64(pagealloc.PageSize)
	start := uint64(seg.VAddr) &^ (pageSize - 1)
	end := (uint64(seg.VAddr) + seg.Memsz - 1) &^ (pageSize - 1)
	for base := start; base <= end; base += pageSize {
		if err := ensurePage(mem, pool, uintptr(base)); err != nil {
			return fmt.Errorf("kernel: mapping segment page %#x: %w", base, err)
		}
	}
	for i := uint64(0); i < seg.Filesz; i++ {
		srcIdx := seg.Offset + i
		if srcIdx >= uint64(len(data)) {
			return fmt.Errorf("kernel: segment file offset %#x beyond image", srcIdx)
		}
		if err := mem.WriteByte(uintptr(seg.VAddr+i), data[srcIdx]); err != nil {
			return err
		}
	}
	return nil
}

// Exec replaces the calling process's address space with the named
// executable image, validating its ELF64 header and PT_LOAD segments,
// pushing cmdline's words onto a fresh stack, then running the registered
// Program for that path to completion and exiting with its return value.
// Any validation, loading, or argv-layout failure leaves the process
// unchanged and is returned without exiting it; a missing Program
// registration is itself treated as a load failure, since this kernel
// cannot execute an arbitrary ELF text section.
func (p *Process) Exec(cmdline string, store *fs.Diskstore) error {
	argv := strings.Fields(cmdline)
	if len(argv) == 0 {
		return fmt.Errorf("kernel: exec: empty command line")
	}
	path := argv[0]

	file, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("kernel: exec %q: %w", path, err)
	}

	data, err := fs.ReadAll(file)
	if err != nil {
		file.Close()
		return err
	}

	hdr, err := elf.ParseHeader(data)
	if err != nil {
		file.Close()
		return err
	}
	segs, err := elf.LoadSegments(data, hdr)
	if err != nil {
		file.Close()
		return err
	}

	mem := usermem.NewSpace()
	for _, seg := range segs {
		if err := loadSegment(mem, p.pool, seg, data); err != nil {
			file.Close()
			return err
		}
	}

	layout, err := PushArgv(mem, p.pool, cmdline)
	if err != nil {
		file.Close()
		return err
	}

	prog, ok := lookupProgram(path)
	if !ok {
		file.Close()
		return fmt.Errorf("kernel: exec %q: no program image registered", path)
	}

	file.SetDenyWrite(true)
	p.mu.Lock()
	p.mem = mem
	p.execFile = file
	p.program = prog
	p.argv = argv
	p.mu.Unlock()

	klog.Debugf("kernel: exec %q entry=%#x argc=%d rsp=%#x", cmdline, hdr.Entry, layout.RDI, layout.RSP)

	status := prog(p.k, p, argv)
	p.Exit(status)
	return nil
}

// Wait blocks until childTID exits and returns its exit status, or -1
// immediately if childTID is not (or is no longer) one of p's children —
// including a second Wait on an already-waited child, matching
// process_wait's single-collection contract.
func (p *Process) Wait(childTID TID) int {
	p.mu.Lock()
	var rec *childRecord
	for _, r := range p.children {
		if r.tid == childTID {
			rec = r
			break
		}
	}
	if rec == nil || rec.waited {
		p.mu.Unlock()
		return -1
	}
	rec.waited = true
	child := rec.proc
	p.mu.Unlock()

	child.waitSema.Down()
	status := child.ExitStatus()
	child.exitSema.Up()
	return status
}

// Exit tears down p: closes every fd, allows writes to and closes its
// executable file, records status, logs the reference kernel's
// "name: exit(status)" line, then signals its parent's Wait (if any) and
// blocks until the parent acknowledges, matching process_exit exactly.
// Exit is idempotent; a process that has already exited is a no-op.
func (p *Process) Exit(status int) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.exitStatus = status
	execFile := p.execFile
	p.mu.Unlock()

	p.fds.CloseAll()
	if execFile != nil {
		execFile.SetDenyWrite(false)
		execFile.Close()
	}

	klog.Infof("%s: exit(%d)", p.thread.Name(), status)

	if p.parent != nil {
		p.waitSema.Up()
		p.exitSema.Down()
	}
}
