package cli

import (
	"fmt"
	"strings"

	"github.com/kokominji/PINTOS-VM/pkg/kernel"
)

// registerBuiltinPrograms installs the program images the test scenarios
// exec against store, standing in for compiled user binaries since this
// kernel has no instruction interpreter to run an arbitrary ELF text
// section. Each is still reached through the real exec path: ELF header
// validation, PT_LOAD mapping, and argv layout all run first.
func registerBuiltinPrograms() {
	kernel.RegisterProgram("echo", func(k *kernel.Kernel, p *kernel.Process, argv []string) int {
		out := p.FDs().Get(1)
		if out == nil {
			return 1
		}
		fmt.Fprintln(writerAdapter{out}, strings.Join(argv[1:], " "))
		return 0
	})
}

// writerAdapter lets fs.File satisfy io.Writer for fmt.Fprintln.
type writerAdapter struct {
	f interface{ Write([]byte) (int, error) }
}

func (w writerAdapter) Write(p []byte) (int, error) { return w.f.Write(p) }
