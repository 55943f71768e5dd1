package main

import (
	"os"

	"github.com/hiro-org/hiro/internal/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
