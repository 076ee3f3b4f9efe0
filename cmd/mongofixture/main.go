// Package main provides a CLI for launching the ephemeral engine outside
// of a test run, mostly to debug binary discovery and startup.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
