package main

import (
	"log"

	"perp-radar/app"
	"perp-radar/config"
)

func main() {
	// Load config from .env file
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	// Create and start app
	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatal(err)
	}
}
