package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"PriceWatch/internal/di"
	"PriceWatch/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	checkOnly := flag.Bool("check", false, "validate the config (after env overrides) and exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if *checkOnly {
		fmt.Printf("config ok: env=%s store=%s cache=%s feed=%s kafka=%t nats=%t clickhouse=%t queue=%t\n",
			cfg.Environment, cfg.Store.Type, cfg.Cache.Type, cfg.Feed.Type,
			cfg.Kafka.Enabled, cfg.NATS.Enabled, cfg.ClickHouse.Enabled, cfg.Queue.Enabled)
		return
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Blocks until SIGINT/SIGTERM.
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
