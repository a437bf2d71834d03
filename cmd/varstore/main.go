// Package main provides the varstore CLI.
package main

import "github.com/mesh-intelligence/varstore/internal/cli"

func main() {
	cli.Execute()
}
