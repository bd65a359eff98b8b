// Package main provides the entry point for the labsearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/labsearch/cmd/labsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
