package main

import (
	"os"

	"github.com/gzhole/voxsh/internal/cli"
	"github.com/gzhole/voxsh/internal/sandbox"
)

func main() {
	sandbox.RunInitIfRequested()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
