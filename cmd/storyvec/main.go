// Package main provides the entry point for the storyvec CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/storyvec/cmd/storyvec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
