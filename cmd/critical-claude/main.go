package main

import (
	"os"
	"slices"

	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		cli.PrintError(os.Stderr, err, verbose(os.Args[1:]))
		os.Exit(cli.ExitCode(err))
	}
}

func verbose(args []string) bool {
	return slices.Contains(args, "-v") || slices.Contains(args, "--verbose")
}
