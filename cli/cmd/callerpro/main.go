package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"github.com/eburon/callerpro/cli/internal/cli/callerpro"
)

func main() {
	// API keys may live in a .env next to the config
	_ = godotenv.Load()

	if err := callerpro.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
