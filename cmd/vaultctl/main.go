// Command vaultctl is a command-line front end for the engine, opening the
// device directly for each invocation rather than talking to a running
// server process.
package main

import (
	"fmt"
	"os"

	"vaultfs/cmd/vaultctl/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
