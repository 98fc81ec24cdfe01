package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/kokominji/PINTOS-VM/pkg/kernel/config"
)

// debugThreadsCommand boots a kernel, runs one command line, and prints the
// final thread table: tid, name, status, base and effective priority.
type debugThreadsCommand struct {
	cfg     *config.Config
	cmdline string
}

func (*debugThreadsCommand) Name() string     { return "threads" }
func (*debugThreadsCommand) Synopsis() string { return "boot, run a command, and dump the thread table" }
func (*debugThreadsCommand) Usage() string    { return "debug threads -exec='prog arg'\n" }

func (c *debugThreadsCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.cmdline, "exec", "echo hello", "command line to exec before dumping state")
}

func (c *debugThreadsCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	k, root, store := newKernel(c.cfg)
	if err := root.Exec(c.cmdline, store); err != nil {
		fmt.Printf("debug threads: exec failed: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("%-6s %-12s %-10s %8s %8s\n", "TID", "NAME", "STATUS", "PRIO", "EFF_PRIO")
	for _, t := range k.Threads() {
		fmt.Printf("%-6d %-12s %-10s %8d %8d\n", t.TID(), t.Name(), t.Status(), t.Priority(), t.EffectivePriority())
	}
	return subcommands.ExitSuccess
}

// debugSchedCommand boots a kernel, runs one command line, and prints the
// MLFQ scheduler's aggregate state: tick count, whether MLFQS is on, and the
// load average scaled the way thread_get_load_avg scales it for userspace.
type debugSchedCommand struct {
	cfg     *config.Config
	cmdline string
}

func (*debugSchedCommand) Name() string     { return "sched" }
func (*debugSchedCommand) Synopsis() string { return "boot, run a command, and dump scheduler state" }
func (*debugSchedCommand) Usage() string    { return "debug sched -exec='prog arg'\n" }

func (c *debugSchedCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.cmdline, "exec", "echo hello", "command line to exec before dumping state")
}

func (c *debugSchedCommand) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	k, root, store := newKernel(c.cfg)
	if err := root.Exec(c.cmdline, store); err != nil {
		fmt.Printf("debug sched: exec failed: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("ticks:    %d\n", k.Ticks())
	fmt.Printf("mlfqs:    %v\n", k.MLFQS())
	fmt.Printf("load_avg: %d (x100)\n", k.GetLoadAvg())
	return subcommands.ExitSuccess
}
