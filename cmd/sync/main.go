package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Sec-Link/SIEM/pkg/cache"
	"github.com/Sec-Link/SIEM/pkg/config"
	"github.com/Sec-Link/SIEM/pkg/elastic"
	"github.com/Sec-Link/SIEM/pkg/services"
)

// One-shot cache sync, meant for cron jobs and operator use. Syncs a single
// tenant with -tenant, or every enabled tenant when the flag is omitted, and
// prints the sync result as JSON on stdout.
func main() {
	configPath := flag.String("config", "", "path to config file")
	tenantID := flag.String("tenant", "", "tenant to sync (default: all enabled tenants)")
	size := flag.Int("size", 0, "batch size per tenant (default: configured sync.batchSize)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	cacheClient, err := cache.NewClient(&cfg.Cache)
	if err != nil {
		logrus.Fatalf("Failed to connect to alert cache: %v", err)
	}
	defer cacheClient.Close()

	store, err := cache.NewStore(ctx, cacheClient)
	if err != nil {
		logrus.Fatalf("Failed to set up alert cache stream: %v", err)
	}

	sources := config.NewSourceCatalog(cfg.Sources)
	fetcher := elastic.NewFetcher(cfg.Fetch)
	syncTask := services.NewSyncTask(fetcher, store, sources, cfg.Sync.BatchSize)

	result, err := syncTask.Sync(ctx, *tenantID, *size)
	if err != nil {
		logrus.Fatalf("Sync failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logrus.Fatalf("Failed to encode sync result: %v", err)
	}

	if len(result.Errors) > 0 {
		logrus.Warnf("Sync completed with %d recorded errors", len(result.Errors))
		os.Exit(1)
	}
}
