// Package main provides the entry point for the loadgen CLI.
package main

import (
	"os"

	"yqhp/loadgen/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
