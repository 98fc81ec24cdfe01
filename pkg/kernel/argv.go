package kernel

import (
	"encoding/binary"
	"strings"

	"github.com/kokominji/PINTOS-VM/pkg/kernel/pagealloc"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/usermem"
)

// UserStackTop is the address one past the highest byte of the initial user
// stack page, standing in for the reference kernel's PHYS_BASE-relative
// USER_STACK constant.
const UserStackTop uintptr = 0x0000_7fff_ffff_e000

// stackBuilder lays out argv on a process's user stack, growing it by one
// page at a time if the pushed strings and pointer array overrun the
// initial page, matching "allocate additional user pages via the page
// allocator if the stack grows past its initial page."
type stackBuilder struct {
	space *usermem.Space
	pool  *pagealloc.Pool
	sp    uintptr
}

func newStackBuilder(space *usermem.Space, pool *pagealloc.Pool) (*stackBuilder, error) {
	b := &stackBuilder{space: space, pool: pool, sp: UserStackTop}
	if err := b.ensureMapped(b.sp - 1); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *stackBuilder) ensureMapped(addr uintptr) error {
	base := addr &^ (pagealloc.PageSize - 1)
	if _, err := b.space.ReadByte(base); err == nil {
		return nil
	}
	pg, err := b.pool.Get()
	if err != nil {
		return err
	}
	return b.space.Map(base, pg)
}

func (b *stackBuilder) pushByte(v byte) (uintptr, error) {
	b.sp--
	if err := b.ensureMapped(b.sp); err != nil {
		return 0, err
	}
	if err := b.space.WriteByte(b.sp, v); err != nil {
		return 0, err
	}
	return b.sp, nil
}

func (b *stackBuilder) pushBytes(data []byte) (uintptr, error) {
	var addr uintptr
	for i := len(data) - 1; i >= 0; i-- {
		a, err := b.pushByte(data[i])
		if err != nil {
			return 0, err
		}
		addr = a
	}
	return addr, nil
}

func (b *stackBuilder) pushUint64(v uint64) (uintptr, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return b.pushBytes(buf[:])
}

func (b *stackBuilder) alignDown16() {
	b.sp &^= 0xF
}

// ArgvLayout is the result of pushing a command line onto the initial user
// stack: the entry-time register values and final stack pointer, matching
// load()'s setup_stack + push-argv sequence.
type ArgvLayout struct {
	RSP  uintptr
	RDI  int // argc
	RSI  uintptr // address of argv[0]
}

// PushArgv splits cmdline on spaces and lays the resulting argv strings and
// pointer array onto the top of space's user stack, per the SysV AMD64
// calling convention: strings first (reverse order, each NUL-terminated),
// then padding chosen so that the final RSP is on a 16-byte boundary, then
// a null sentinel, then the pointer array in reverse order (so argv[0]'s
// pointer ends up at the lowest address), then a fake return address of
// zero.
func PushArgv(space *usermem.Space, pool *pagealloc.Pool, cmdline string) (ArgvLayout, error) {
	argv := strings.Fields(cmdline)
	if len(argv) == 0 {
		argv = []string{cmdline}
	}
	b, err := newStackBuilder(space, pool)
	if err != nil {
		return ArgvLayout{}, err
	}

	ptrs := make([]uintptr, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		addr, err := b.pushBytes(append([]byte(argv[i]), 0))
		if err != nil {
			return ArgvLayout{}, err
		}
		ptrs[i] = addr
	}

	b.alignDown16()
	// The sentinel, argc pointers and fake return address add argc+2 words;
	// pad one more word when that count is odd so the final RSP stays aligned.
	if (len(argv)+2)%2 != 0 {
		b.sp -= 8
	}

	if _, err := b.pushUint64(0); err != nil { // argv[argc] sentinel
		return ArgvLayout{}, err
	}
	for i := len(ptrs) - 1; i >= 0; i-- {
		if _, err := b.pushUint64(uint64(ptrs[i])); err != nil {
			return ArgvLayout{}, err
		}
	}
	argvAddr := b.sp

	if _, err := b.pushUint64(0); err != nil { // fake return address
		return ArgvLayout{}, err
	}

	return ArgvLayout{RSP: b.sp, RDI: len(argv), RSI: argvAddr}, nil
}
