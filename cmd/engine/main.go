package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/rawblock/coinjoin-engine/internal/api"
	"github.com/rawblock/coinjoin-engine/internal/coinjoin"
	"github.com/rawblock/coinjoin-engine/internal/db"
	"github.com/rawblock/coinjoin-engine/internal/explorer"
	"github.com/rawblock/coinjoin-engine/internal/mempool"
	"github.com/rawblock/coinjoin-engine/internal/scanner"
)

func main() {
	log.Println("Starting CoinJoin Classification Engine...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values.
	// ────────────────────────────────────────────────────────────────────

	dbUrl := requireEnv("DATABASE_URL")

	dbConn, err := db.Connect(dbUrl)
	if err != nil {
		log.Printf("Warning: Failed to connect to PostgreSQL, continuing without persistence. Error: %v", err)
	} else {
		defer dbConn.Close()
		if err := dbConn.InitSchema(); err != nil {
			log.Printf("Warning: DB schema init failed: %v", err)
		}
	}

	explorerBaseURL := getEnvOrDefault("EXPLORER_BASE_URL", "https://blockstream.info/api")
	explorerClient, err := explorer.NewClient(explorer.Config{
		BaseURL:    explorerBaseURL,
		RatePerSec: envFloatOrDefault("EXPLORER_RATE_PER_SEC", explorer.DefaultRatePerSec),
	})
	if err != nil {
		log.Printf("Warning: Failed to build explorer client: %v", err)
	}

	engineCfg, err := coinjoin.NewConfig(*coinjoin.DefaultConfig())
	if err != nil {
		log.Fatalf("FATAL: built-in default configuration failed validation: %v", err)
	}
	engine := coinjoin.NewEngine(engineCfg)

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	var blockScanner *scanner.BlockScanner
	if explorerClient != nil {
		poller := mempool.NewPoller(explorerClient, engine, wsHub, dbConn)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go poller.Run(ctx)

		blockScanner = scanner.NewBlockScanner(explorerClient, engine, dbConn, api.BroadcastCoinJoinAlert(wsHub))
	} else {
		log.Println("WARNING: explorer client unavailable — engine running in API-only mode (no poller/scanner)")
	}

	r := api.SetupRouter(dbConn, explorerClient, engine, wsHub, blockScanner)

	port := getEnvOrDefault("PORT", "5339")

	log.Printf("Engine running on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
// This prevents the binary from starting with missing critical configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set.", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// envFloatOrDefault parses a float64 env var, falling back to a default
// on an empty or malformed value rather than aborting startup.
func envFloatOrDefault(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		log.Printf("Warning: invalid value for %s (%q), using default %v", key, val, fallback)
		return fallback
	}
	return parsed
}
