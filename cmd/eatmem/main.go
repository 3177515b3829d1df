package main

import (
	"os"

	"github.com/cloudbedlam/eatmem/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
