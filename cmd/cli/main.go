// Package main is the entry point for the talk2data CLI binary.
package main

import (
	"os"

	cli "talk2data/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
