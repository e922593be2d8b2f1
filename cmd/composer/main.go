// Command composer builds Malloy queries from a semantic model.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/composer/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
