// Command migrate bootstraps the uptime-monitor schema against the
// configured datastore and prints a database summary, for use during
// deploys and local setup.
package main

import (
	"fmt"
	"log"

	"github.com/watchkeep/uptime-monitor/pkg/config"
	"github.com/watchkeep/uptime-monitor/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	fmt.Println("Uptime Monitor — Schema Migration")
	fmt.Printf("Database URL: %s\n", cfg.Datastore.URL)

	db, err := database.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	fmt.Println("schema applied")

	if err := db.HealthCheck(); err != nil {
		log.Fatalf("database health check failed: %v", err)
	}
	fmt.Println("health check passed")

	stats, err := db.GetStats()
	if err != nil {
		log.Fatalf("failed to get database stats: %v", err)
	}

	fmt.Println("\nDatabase statistics:")
	for key, value := range stats {
		fmt.Printf("  %s: %v\n", key, value)
	}
}
