package main

import (
	"flag"
	"log"
	"os"

	"FinCast/internal/di"
	"FinCast/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s backend=%s cache=%s queue=%s kafka=%t",
		cfg.Environment, cfg.Backend.Type, cfg.Cache.Type, cfg.Queue.Mode, cfg.Kafka.Enabled)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run blocks until SIGINT/SIGTERM.
	runErr := app.Run()
	cleanup()
	if runErr != nil {
		log.Printf("app error: %v", runErr)
		os.Exit(1)
	}
}
