// Package main is the entry point for the sessionauth server.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
