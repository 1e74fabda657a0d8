package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/hyphalabs/evm-agent/internal/app"
)

func main() {
	// Keys and RPC overrides commonly live in a local .env during development.
	_ = godotenv.Load()
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
