package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"knowledge-organization/backend/internal/graph"
	"knowledge-organization/backend/pkg/config"
	"knowledge-organization/backend/pkg/logger"
)

func main() {
	force := flag.Bool("force", false, "Force migration even if already applied")
	strict := flag.Bool("strict", false, "Abort on the first failing statement")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting Neo4j schema migration...", zap.String("schema", graph.SchemaVersion))

	ctx := context.Background()
	driver, err := graph.NewDriver(ctx, graph.DriverConfig{
		URI:         cfg.Neo4jURI,
		User:        cfg.Neo4jUser,
		Password:    cfg.Neo4jPassword,
		MaxPoolSize: cfg.Neo4jMaxPoolSize,
		Timeout:     cfg.Neo4jTimeout,
	})
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	repo := graph.NewRepository(driver, cfg.Neo4jDatabase)
	defer repo.Close()

	// Check if migration already applied
	if !*force {
		applied, err := repo.MigrationApplied(ctx)
		if err != nil {
			log.Fatal("Failed to check migration status", zap.Error(err))
		}
		if applied {
			log.Info("Migration already applied. Use -force to reapply.")
			os.Exit(0)
		}
	}

	if err := repo.ApplyMigrations(ctx, *strict); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}

	log.Info("Migration completed successfully!")
}
