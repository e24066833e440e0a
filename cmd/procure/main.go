package main

import (
	"os"

	"github.com/lablane/procure/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
