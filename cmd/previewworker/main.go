package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"libreshelf/internal/config"
	"libreshelf/internal/preview"
	"libreshelf/internal/realtime"
	"libreshelf/internal/util"
	"libreshelf/pkg/domain"
	"libreshelf/pkg/queue"
	"libreshelf/pkg/storage"
	"libreshelf/pkg/store"
)

// previewFragment renders the minimal replacement fragment pushed to open
// sessions. The web tier owns the full card markup; this covers the image
// slot it swaps in.
func previewFragment(doc domain.Document) string {
	if doc.Preview.Zero() {
		return `<div id="document_` + doc.ID + `" class="preview placeholder"></div>`
	}
	return `<img id="document_` + doc.ID + `" class="preview" src="/previews/` + doc.ID + `" alt="">`
}

func main() {
	cfg, err := config.Load(config.ConfigPath)
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
	blobs := storage.NewObjectBlobService(objects)

	broadcaster, err := realtime.NewRedisBroadcaster(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("failed to init broadcaster: %v", err)
	}

	jobQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.PreviewStream,
		Group:    cfg.PreviewGroup,
	})
	if err != nil {
		log.Fatalf("failed to init preview queue: %v", err)
	}

	renderer := preview.NewRenderer(blobs, dataStore, cfg.Rasterizer, cfg.RasterizerTimeout())
	coordinator := preview.NewCoordinator(dataStore, renderer, broadcaster, previewFragment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		jobQueue.Start(ctx, cfg.WorkerConcurrency, coordinator.Run)
		<-ctx.Done()
		return ctx.Err()
	})

	slog.Info("preview worker running", "stream", cfg.PreviewStream, "concurrency", cfg.WorkerConcurrency)
	if err := group.Wait(); err != nil && err != context.Canceled {
		slog.Error("worker stopped", "error", err)
	}
}
