// Package cli is the command-line entrypoint, built the way runsc/cli
// builds its own Main: subcommands registered on a single commander, flags
// parsed once, then dispatched.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/kokominji/PINTOS-VM/pkg/kernel"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/config"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/fs"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/klog"
	"github.com/kokominji/PINTOS-VM/pkg/kernel/pagealloc"
)

// Main is the CLI entrypoint invoked by cmd/pintos.
func Main() {
	defaults, err := config.LoadFile("pintos.toml")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flagSet := flag.NewFlagSet("pintos", flag.ExitOnError)
	cfg := config.RegisterFlags(flagSet, defaults)

	registerBuiltinPrograms()

	cmdr := subcommands.NewCommander(flagSet, "pintos")
	cmdr.Register(subcommands.HelpCommand(), "")
	cmdr.Register(subcommands.FlagsCommand(), "")
	cmdr.Register(subcommands.CommandsCommand(), "")
	cmdr.Register(&bootCommand{cfg: cfg}, "")
	cmdr.Register(&debugThreadsCommand{cfg: cfg}, "debug")
	cmdr.Register(&debugSchedCommand{cfg: cfg}, "debug")

	flagSet.Parse(os.Args[1:])
	klog.SetLevel(cfg.LogLevel)

	os.Exit(int(cmdr.Execute(context.Background())))
}

// newKernel boots a Kernel plus a root user process from cfg, sharing the
// setup every subcommand in this package needs. The root process's
// stdin/stdout are os.Stdin/os.Stdout; use newKernelWithStdio to attach an
// interactive pty instead.
func newKernel(cfg *config.Config) (*kernel.Kernel, *kernel.Process, *fs.Diskstore) {
	return newKernelWithStdio(cfg, os.Stdin, os.Stdout)
}

// newKernelWithStdio is newKernel with the root process's console streams
// supplied by the caller, so an interactive boot can hand it the slave end
// of a pty instead of the host's raw stdin/stdout.
func newKernelWithStdio(cfg *config.Config, in io.Reader, out io.Writer) (*kernel.Kernel, *kernel.Process, *fs.Diskstore) {
	k, initial := kernel.New(kernel.Opts{
		MLFQS:           cfg.MLFQS,
		TimeSlice:       cfg.TimeSlice,
		TimerFreq:       cfg.TimerFreq,
		DefaultPriority: cfg.DefaultPriority,
	})

	pool := pagealloc.New()
	store, err := fs.NewDiskstore(os.TempDir() + "/pintos-vm")
	if err != nil {
		klog.Fatalf("kernel: creating diskstore: %v", err)
	}

	stdin := fs.NewConsoleReader(in)
	stdout := fs.NewConsoleWriter(out)
	root := kernel.NewRootProcess(k, initial, pool, stdin, stdout)
	return k, root, store
}
