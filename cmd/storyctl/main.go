package main

import (
	"os"

	"github.com/Lllllllleong/userstoryflow/cmd/storyctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
