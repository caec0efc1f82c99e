// Package main is the entry point for the calltree CLI.
package main

import (
	"fmt"
	"os"

	"github.com/fuzzlens/calltree/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
