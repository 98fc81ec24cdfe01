package syscalls

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/kokominji/PINTOS-VM/pkg/kernel"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/fs"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/pagealloc"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/usermem"
)

// writeCString places a NUL-terminated string at addr in mem, mapping a
// fresh page from pool first if addr isn't backed yet.
func writeCString(mem *usermem.Space, pool *pagealloc.Pool, addr uintptr, s string) uintptr {
	if _, err := mem.ReadByte(addr); err != nil {
		pg, perr := pool.Get()
		if perr != nil {
			panic(perr)
		}
		if merr := mem.Map(addr, pg); merr != nil {
			panic(merr)
		}
	}
	if err := mem.CopyOut(addr, append([]byte(s), 0)); err != nil {
		panic(err)
	}
	return addr
}

func buildTestELF() []byte {
	buf := make([]byte, 64+56)
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4], buf[5] = 2, 1
	binary.LittleEndian.PutUint16(buf[16:18], 2)
	binary.LittleEndian.PutUint16(buf[18:20], 0x3E)
	binary.LittleEndian.PutUint32(buf[20:24], 1)
	binary.LittleEndian.PutUint64(buf[24:32], 0x401000)
	binary.LittleEndian.PutUint64(buf[32:40], 64)
	binary.LittleEndian.PutUint16(buf[54:56], 56)
	binary.LittleEndian.PutUint16(buf[56:58], 1)
	p := buf[64:]
	binary.LittleEndian.PutUint32(p[0:4], 1)
	binary.LittleEndian.PutUint32(p[4:8], 5)
	binary.LittleEndian.PutUint64(p[16:24], 0x400000)
	binary.LittleEndian.PutUint64(p[32:40], uint64(len(buf)))
	binary.LittleEndian.PutUint64(p[40:48], uint64(len(buf)))
	return buf
}

func TestSchedGetSetParamRoundTrip(t *testing.T) {
	store, err := fs.NewDiskstore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("NewDiskstore: %v", err)
	}
	store.Seed("prog", buildTestELF())

	table := Table(store)

	var observed uintptr
	kernel.RegisterProgram("prog", func(k *kernel.Kernel, p *kernel.Process, argv []string) int {
		Dispatch(table, p, SysSchedSetparam, Args{42})
		observed = Dispatch(table, p, SysSchedGetparam, Args{})
		return 0
	})

	k, initial := kernel.New(kernel.Opts{})
	pool := pagealloc.New()
	root := kernel.NewRootProcess(k, initial, pool,
		fs.NewConsoleReader(os.Stdin), fs.NewConsoleWriter(os.Stdout))

	if err := root.Exec("prog", store); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	if observed != 42 {
		t.Fatalf("sched_getparam after sched_setparam(42) = %d, want 42", observed)
	}
}

func TestUnknownSyscallNumberExitsProcess(t *testing.T) {
	store, err := fs.NewDiskstore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("NewDiskstore: %v", err)
	}
	store.Seed("bad", buildTestELF())
	table := Table(store)

	kernel.RegisterProgram("bad", func(k *kernel.Kernel, p *kernel.Process, argv []string) int {
		Dispatch(table, p, 999, Args{})
		return 0 // unreachable: Dispatch already exited the process with -1
	})

	k, initial := kernel.New(kernel.Opts{})
	pool := pagealloc.New()
	root := kernel.NewRootProcess(k, initial, pool,
		fs.NewConsoleReader(os.Stdin), fs.NewConsoleWriter(os.Stdout))

	root.Exec("bad", store)
	if root.ExitStatus() != -1 {
		t.Fatalf("exit status after unknown syscall = %d, want -1", root.ExitStatus())
	}
}

// TestForkExecWaitViaSyscalls drives fork/exec/wait purely through the
// dispatch table, the path forkHandler's no-op child body used to make
// unreachable: a Program that forks checks IsForkChild on re-entry and
// execs a second image instead of forking again.
func TestForkExecWaitViaSyscalls(t *testing.T) {
	store, err := fs.NewDiskstore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("NewDiskstore: %v", err)
	}
	store.Seed("forker", buildTestELF())
	store.Seed("child-prog", buildTestELF())

	table := Table(store)
	pool := pagealloc.New()

	const cstringAddr = 0x800000
	var waitStatus int32 = -99

	kernel.RegisterProgram("forker", func(k *kernel.Kernel, p *kernel.Process, argv []string) int {
		if p.IsForkChild() {
			path := writeCString(p.Mem(), pool, cstringAddr, "child-prog")
			Dispatch(table, p, SysExec, Args{path})
			return -1 // unreachable: Exec already exited the process
		}
		namePath := writeCString(p.Mem(), pool, cstringAddr, "child")
		tid := Dispatch(table, p, SysFork, Args{namePath})
		status := Dispatch(table, p, SysWait, Args{tid})
		waitStatus = int32(status)
		return 0
	})
	kernel.RegisterProgram("child-prog", func(k *kernel.Kernel, p *kernel.Process, argv []string) int {
		return 7
	})

	k, initial := kernel.New(kernel.Opts{})
	root := kernel.NewRootProcess(k, initial, pool,
		fs.NewConsoleReader(os.Stdin), fs.NewConsoleWriter(os.Stdout))

	if err := root.Exec("forker", store); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	if waitStatus != 7 {
		t.Fatalf("wait status observed via syscalls = %d, want 7", waitStatus)
	}
}
