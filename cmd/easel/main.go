package main

import (
	"os"

	"github.com/davin/easel/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
