// Package main provides the entry point for the indexedsearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/indexedsearch/cmd/indexedsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
