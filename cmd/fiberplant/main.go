// Package main provides the fiberplant CLI.
package main

import "github.com/mesh-intelligence/fiberplant/internal/cli"

func main() {
	cli.Execute()
}
