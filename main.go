package main

import (
	"os"

	"github.com/ibflow/ingestd/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}