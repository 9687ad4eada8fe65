package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/userstoryflow/internal/models"
	"github.com/Lllllllleong/userstoryflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	triggerInstance *services.UploadTrigger
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The framework will handle routing the event here.
	functions.CloudEvent("GenerateFromUpload", generateFromUpload)
}

// main is required by the Go Functions Framework.
func main() {}

func initTrigger(ctx context.Context) (*services.UploadTrigger, error) {
	cfg, err := services.LoadConfig()
	if err != nil {
		return nil, err
	}
	pipeline, err := services.NewPipelineFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		_ = pipeline.Close()
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return assembleTrigger(pipeline, services.GCSObjectReader(storageClient), cfg.ArtifactsBucket, storageClient, pipeline)
}

// assembleTrigger builds the trigger and closes owned when it cannot.
func assembleTrigger(pipeline *services.Pipeline, read services.ObjectReader, artifactsBucket string, owned ...io.Closer) (*services.UploadTrigger, error) {
	trigger, err := services.NewUploadTrigger(pipeline, read, artifactsBucket)
	if err != nil {
		for _, c := range owned {
			if closeErr := c.Close(); closeErr != nil {
				slog.Warn("Failed to release client after init error.", "error", closeErr)
			}
		}
		return nil, err
	}
	return trigger, nil
}

// generateFromUpload is the Cloud Function entry point for GCS finalize events.
func generateFromUpload(ctx context.Context, e cloudevents.Event) error {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		triggerInstance, initErr = initTrigger(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Returning an error marks the invocation as failed.
	return triggerInstance.Process(ctx, gcsEvent)
}
