// Command nudge runs the proactive nudge engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/nudge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
