// Package main provides the entry point for the gules CLI.
package main

import (
	"github.com/kiwina/gules/internal/cli"
)

func main() {
	cli.Execute()
}
