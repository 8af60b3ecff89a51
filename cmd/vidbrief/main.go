// Package main is the entry point for the vidbrief application.
package main

import (
	"os"

	"github.com/jmylchreest/vidbrief/cmd/vidbrief/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
