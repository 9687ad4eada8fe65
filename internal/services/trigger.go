package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/userstoryflow/internal/gcp"
	"github.com/Lllllllleong/userstoryflow/internal/models"
)

// Object metadata keys carrying the generation context of an upload.
const (
	MetadataLanguage     = "language"
	MetadataFramework    = "framework"
	MetadataDatabase     = "database"
	MetadataORM          = "orm"
	MetadataInstructions = "instructions"
)

// ObjectReader reads a Cloud Storage object and its custom metadata.
type ObjectReader func(ctx context.Context, bucket, object string) ([]byte, map[string]string, error)

// GCSObjectReader reads objects with the given client.
func GCSObjectReader(client *storage.Client) ObjectReader {
	return func(ctx context.Context, bucket, object string) ([]byte, map[string]string, error) {
		return gcp.ReadObject(ctx, client, bucket, object)
	}
}

// UploadTrigger runs the pipeline for documents uploaded to a bucket.
type UploadTrigger struct {
	pipeline        *Pipeline
	read            ObjectReader
	artifactsBucket string
}

// NewUploadTrigger creates an UploadTrigger. Events from artifactsBucket
// are ignored so the pipeline never consumes its own output.
func NewUploadTrigger(pipeline *Pipeline, read ObjectReader, artifactsBucket string) (*UploadTrigger, error) {
	if pipeline == nil || read == nil {
		return nil, fmt.Errorf("NewUploadTrigger: pipeline and reader are required")
	}
	return &UploadTrigger{pipeline: pipeline, read: read, artifactsBucket: artifactsBucket}, nil
}

// Process handles one finalize event. Duplicates and unsupported objects
// are a clean exit.
func (t *UploadTrigger) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	if t.artifactsBucket != "" && e.Bucket == t.artifactsBucket {
		logCtx.Info("SKIPPING: Object is in the artifacts bucket.")
		return nil
	}
	if !supportedUpload(e.Name) {
		logCtx.Info("SKIPPING: Unsupported file type.")
		return nil
	}

	data, metadata, err := t.read(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to download upload", "error", err)
		return err
	}

	genCtx, err := ContextFromMetadata(metadata)
	if err != nil {
		// Retrying cannot fix bad metadata.
		logCtx.Error("Invalid generation context in object metadata. Skipping.", "error", err)
		return nil
	}

	result, err := t.pipeline.Run(ctx, models.PipelineRequest{
		Upload:          models.Upload{Filename: e.Name, Data: data},
		Context:         genCtx,
		SkipIfCompleted: true,
	}, nil)
	var dup *DuplicateRunError
	if errors.As(err, &dup) {
		logCtx.Info("Duplicate file detected. Skipping.", "existingRunId", dup.RunID)
		return nil
	}
	if err != nil {
		return err
	}
	logCtx.Info("Upload processed.", "runId", result.RunID, "stories", len(result.Stories))
	return nil
}

// ContextFromMetadata builds a generation context from object metadata.
func ContextFromMetadata(metadata map[string]string) (models.GenerationContext, error) {
	return models.NewGenerationContext(
		metadata[MetadataLanguage],
		metadata[MetadataFramework],
		metadata[MetadataDatabase],
		metadata[MetadataORM],
		metadata[MetadataInstructions],
	)
}

var uploadExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

func supportedUpload(name string) bool {
	return uploadExtensions[strings.ToLower(path.Ext(name))]
}
