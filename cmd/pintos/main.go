// Command pintos boots the simulated kernel and dispatches its
// subcommands (boot, debug threads, debug sched).
package main

import "github.com/kokominji/PINTOS-VM/internal/cli"

func main() {
	cli.Main()
}
