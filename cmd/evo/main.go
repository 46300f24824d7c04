package main

import (
	"os"

	"github.com/halim/evo/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
