//go:build mage
// +build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binaryPath = "bin/signaling-server"

// Build compiles the signaling server binary.
func Build() error {
	return sh.RunV("go", "build", "-o", binaryPath, "./cmd/signaling-server")
}

// Test runs the test suite with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Run builds and starts the relay with local defaults.
func Run() error {
	mg.Deps(Build)
	return sh.RunV(binaryPath)
}

// Lint vets the module.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}
