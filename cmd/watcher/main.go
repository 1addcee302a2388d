// Package main is the entry point for the watcher CLI.
package main

import (
	"os"

	"github.com/watcherhq/watcher/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
