// ABOUTME: Main CLI application for the weft workflow engine
// ABOUTME: Entry point for the Cobra-based command-line interface

package main

import (
	"os"

	"github.com/weftrun/weft/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
