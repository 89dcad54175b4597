package main

import (
	"os"

	"github.com/bodega/bodega-api/cmd/bodegactl/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
