// Package main is the entry point for the feedscroll CLI.
package main

import (
	"os"

	"github.com/jmylchreest/feedscroll/cmd/feedscroll/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
