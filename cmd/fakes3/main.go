// Package main is the entry point for the FakeS3 server.
package main

import (
	"os"

	"github.com/kumasuke/fakes3/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
