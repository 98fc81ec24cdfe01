package cli

import (
	"io"
	"os"

	"github.com/containerd/console"
	"github.com/kr/pty"

	"github.com/kokominji/PINTOS-VM/pkg/kernel/klog"
)

// interactiveConsole wires a host pty to the simulated root process's
// stdin/stdout, the equivalent of runsc exec -ti: the host terminal is put
// into raw mode and its bytes are relayed through a pty pair so the
// process's console reads/writes behave like a real attached terminal
// rather than the plain os.Stdin/os.Stdout pass-through newKernel uses by
// default.
type interactiveConsole struct {
	master *os.File
	slave  *os.File
	saved  console.Console
}

// attachInteractiveConsole allocates a pty, puts the host terminal in raw
// mode, and starts the relay goroutines. Call restore() when the process
// using the slave side has exited.
func attachInteractiveConsole() (*interactiveConsole, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}

	ic := &interactiveConsole{master: master, slave: slave}

	if current, cerr := console.ConsoleFromFile(os.Stdin); cerr == nil {
		if err := current.SetRaw(); err != nil {
			klog.Infof("console: failed to set raw mode: %v", err)
		} else {
			ic.saved = current
		}
	}

	go io.Copy(master, os.Stdin)
	go io.Copy(os.Stdout, master)

	return ic, nil
}

// stdio returns the slave side's two ends as the process's stdin/stdout.
func (ic *interactiveConsole) stdio() (*os.File, *os.File) {
	return ic.slave, ic.slave
}

func (ic *interactiveConsole) restore() {
	if ic.saved != nil {
		ic.saved.Reset()
	}
	ic.slave.Close()
	ic.master.Close()
}
