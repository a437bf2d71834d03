//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import "github.com/magefile/mage/sh"

const binLint = "golangci-lint"

// Lint runs gofmt and golangci-lint.
func Lint() error {
	if err := sh.RunV("gofmt", "-l", "-d", "cmd", "internal", "pkg", "magefiles"); err != nil {
		return err
	}
	return sh.RunV(binLint, "run", "./...")
}
