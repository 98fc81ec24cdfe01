package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/kokominji/PINTOS-VM/pkg/kernel/config"
)

// bootCommand boots a kernel instance and runs a single command line to
// completion, the simulated-kernel equivalent of runsc's "do" subcommand:
// one-shot, no persistent daemon.
type bootCommand struct {
	cfg         *config.Config
	cmdline     string
	interactive bool
}

func (*bootCommand) Name() string     { return "boot" }
func (*bootCommand) Synopsis() string { return "boot the kernel and exec a command line" }
func (*bootCommand) Usage() string {
	return "boot -exec='prog arg1 arg2' [-ti]: boot the kernel and run prog to completion\n"
}

func (c *bootCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.cmdline, "exec", "echo hello", "command line to exec as the root process")
	f.BoolVar(&c.interactive, "ti", false, "attach the root process's console to a pty instead of stdin/stdout directly")
}

func (c *bootCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.interactive {
		_, r, store := newKernel(c.cfg)
		if err := r.Exec(c.cmdline, store); err != nil {
			fmt.Printf("boot: exec %q failed: %v\n", c.cmdline, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("%s: exit(%d)\n", c.cmdline, r.ExitStatus())
		return subcommands.ExitSuccess
	}

	ic, err := attachInteractiveConsole()
	if err != nil {
		fmt.Printf("boot: attaching pty: %v\n", err)
		return subcommands.ExitFailure
	}
	defer ic.restore()

	in, out := ic.stdio()
	_, r, store := newKernelWithStdio(c.cfg, in, out)
	if err := r.Exec(c.cmdline, store); err != nil {
		fmt.Printf("boot: exec %q failed: %v\n", c.cmdline, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s: exit(%d)\n", c.cmdline, r.ExitStatus())
	return subcommands.ExitSuccess
}
