package kernel

import (
	"encoding/binary"
	"testing"

	"github.com/kokominji/PINTOS-VM/pkg/kernel/pagealloc"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/usermem"
)

func readCStringAt(t *testing.T, space *usermem.Space, addr uintptr) string {
	t.Helper()
	var buf []byte
	for i := 0; ; i++ {
		b, err := space.ReadByte(addr + uintptr(i))
		if err != nil {
			t.Fatalf("reading argv string at %#x: %v", addr, err)
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

func TestPushArgvLayout(t *testing.T) {
	space := usermem.NewSpace()
	pool := pagealloc.New()

	layout, err := PushArgv(space, pool, "args-multiple some arg for you")
	if err != nil {
		t.Fatalf("PushArgv: %v", err)
	}

	if layout.RDI != 5 {
		t.Fatalf("argc = %d, want 5", layout.RDI)
	}
	if layout.RSP%16 != 0 {
		t.Fatalf("rsp %#x is not 16-byte aligned", layout.RSP)
	}

	want := []string{"args-multiple", "some", "arg", "for", "you"}
	for i, w := range want {
		ptrAddr := layout.RSI + uintptr(i*8)
		var raw [8]byte
		for j := range raw {
			b, err := space.ReadByte(ptrAddr + uintptr(j))
			if err != nil {
				t.Fatalf("reading argv[%d] pointer: %v", i, err)
			}
			raw[j] = b
		}
		strAddr := uintptr(binary.LittleEndian.Uint64(raw[:]))
		got := readCStringAt(t, space, strAddr)
		if got != w {
			t.Fatalf("argv[%d] = %q, want %q", i, got, w)
		}
	}

	sentinelAddr := layout.RSI + uintptr(len(want)*8)
	var raw [8]byte
	for j := range raw {
		b, err := space.ReadByte(sentinelAddr + uintptr(j))
		if err != nil {
			t.Fatalf("reading argv[argc] sentinel: %v", err)
		}
		raw[j] = b
	}
	if binary.LittleEndian.Uint64(raw[:]) != 0 {
		t.Fatalf("argv[argc] sentinel is not null")
	}
}
