package main

import (
	"os"

	"github.com/mindmarionette/marionette/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
