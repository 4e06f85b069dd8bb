package main

import (
	"os"

	"github.com/emunx/nxmeta/cmd/nxmeta/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
