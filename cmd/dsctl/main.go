package main

import (
	"os"

	"github.com/xelth-com/dsrelay/cmd/dsctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
