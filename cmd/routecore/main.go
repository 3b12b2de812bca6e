// Package main provides the entry point for the routecore CLI.
package main

import (
	"os"

	"github.com/toolmesh/routecore/cmd/routecore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
