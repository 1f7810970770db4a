// Command provision creates the containers for every registered entity type
// and exits. It reads the same environment as the server.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/ravikumarmistry/quix/internal/config"
	"github.com/ravikumarmistry/quix/internal/container"
	"github.com/ravikumarmistry/quix/internal/database"
	"github.com/ravikumarmistry/quix/pkg/logger"
)

func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "overall provisioning timeout")
	dryRun := flag.Bool("dry-run", false, "print the container mappings without touching the store")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"))
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.SetOutput(os.Stdout, cfg.Log.Format)

	registry, err := container.NewRegistry(cfg.Containers...)
	if err != nil {
		logger.Fatalf("invalid container configuration: %v", err)
	}
	for _, c := range registry.Configs() {
		logger.Infof("%s -> container %s (partition key %s)", c.EntityName, c.ContainerID, c.PartitionKeyField)
	}
	if *dryRun {
		return
	}

	if err := provision(cfg, registry, *timeout); err != nil {
		logger.Fatalf("provisioning failed: %v", err)
	}
}

func provision(cfg *config.Config, registry *container.Registry, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	backend, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close(context.Background())

	router := container.NewRouter(backend.DB, registry)
	if err := router.Warm(ctx); err != nil {
		return err
	}
	logger.Infof("provisioned %d containers", router.Len())
	return nil
}
