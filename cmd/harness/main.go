package main

import (
	"os"

	"github.com/synadia-labs/cli-harness/internal/logger"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		logger.New().Failure(os.Stderr, "Error: %s", err)
		os.Exit(1)
	}
}
