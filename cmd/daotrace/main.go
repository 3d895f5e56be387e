// Package main is the entry point for the daotrace CLI.
package main

import (
	"fmt"
	"os"

	"github.com/imyousuf/daotrace/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
