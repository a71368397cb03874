package main

import (
	"fmt"
	"os"
)

// Build-time variables (set via -ldflags)
var (
	buildTime = "unknown" // Set via -ldflags "-X main.buildTime=..."
	gitCommit = "unknown" // Set via -ldflags "-X main.gitCommit=..."
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Single-line diagnostic; cobra already printed usage errors.
		fmt.Fprintf(os.Stderr, "ort: %v\n", err)
		os.Exit(1)
	}
}
