package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"libreshelf/internal/app"
	"libreshelf/internal/config"
	"libreshelf/internal/util"
	"libreshelf/pkg/storage"
	"libreshelf/pkg/store"
)

// reconcile recomputes a tenant's storage_used counter from its live
// documents and repairs any drift. Intended for operator use after
// incidents; normal accounting is incremental.
func main() {
	tenantID := flag.String("tenant", "", "tenant ID to reconcile")
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	flag.Parse()

	if *tenantID == "" {
		fmt.Fprintln(os.Stderr, "usage: reconcile -tenant <id> [-config <path>]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}

	core, err := app.New(app.Config{
		Store: dataStore,
		Blobs: storage.NewObjectBlobService(objects),
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	drift, err := core.ReconcileStorage(*tenantID)
	if err != nil {
		log.Fatalf("reconcile failed: %v", err)
	}
	if drift == 0 {
		fmt.Printf("tenant %s: counter consistent\n", *tenantID)
		return
	}
	fmt.Printf("tenant %s: counter corrected by %+d bytes\n", *tenantID, drift)
}
