// Package main provides the NIRV command-line entry point.
package main

import (
	"os"

	"github.com/nirv/nirv/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
