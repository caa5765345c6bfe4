//go:build !tinygo

package main

// This file keeps the root package buildable with the regular Go toolchain
// (staticcheck, go vet). The actual entry point is in main.go (TinyGo only);
// everything testable lives in the subpackages.

func main() {}
