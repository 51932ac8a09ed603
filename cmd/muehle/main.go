package main

import (
	"os"

	"muehle-agent/cmd/muehle/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
