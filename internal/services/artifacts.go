package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/userstoryflow/internal/gcp"
	"github.com/Lllllllleong/userstoryflow/internal/models"
	"golang.org/x/sync/errgroup"
)

// ArtifactStore persists the artifacts of a finished run and returns the
// location they were written to.
type ArtifactStore interface {
	Save(ctx context.Context, result *models.RunResult) (string, error)
}

type artifactObject struct {
	Name        string
	ContentType string
	Content     []byte
}

// artifactObjects lays out every story, schema version and code version of
// a run under its run ID, plus the full result as JSON.
func artifactObjects(result *models.RunResult) ([]artifactObject, error) {
	var objects []artifactObject
	for _, s := range result.Stories {
		objects = append(objects, artifactObject{
			Name:        fmt.Sprintf("%s/stories/%05d.md", result.RunID, s.Index+1),
			ContentType: "text/markdown; charset=utf-8",
			Content:     []byte(s.Text),
		})
	}
	for _, v := range result.Schema.Versions {
		objects = append(objects, artifactObject{
			Name:        fmt.Sprintf("%s/schema/%05d.yaml", result.RunID, v.Step),
			ContentType: "application/yaml",
			Content:     []byte(v.Text),
		})
	}
	for _, v := range result.Code.Versions {
		objects = append(objects, artifactObject{
			Name:        fmt.Sprintf("%s/code/%05d.txt", result.RunID, v.Step),
			ContentType: "text/plain; charset=utf-8",
			Content:     []byte(v.Text),
		})
	}

	summary, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run result: %w", err)
	}
	objects = append(objects, artifactObject{
		Name:        result.RunID + "/result.json",
		ContentType: "application/json",
		Content:     summary,
	})
	return objects, nil
}

// GCSArtifactStore writes run artifacts to a Cloud Storage bucket.
type GCSArtifactStore struct {
	client *storage.Client
	bucket string
}

// NewGCSArtifactStore creates a store for the given bucket.
func NewGCSArtifactStore(client *storage.Client, bucket string) (*GCSArtifactStore, error) {
	if client == nil {
		return nil, fmt.Errorf("NewGCSArtifactStore: client cannot be nil")
	}
	if bucket == "" {
		return nil, fmt.Errorf("NewGCSArtifactStore: bucket cannot be empty")
	}
	return &GCSArtifactStore{client: client, bucket: bucket}, nil
}

// Save uploads the artifacts concurrently. Objects that already exist are
// left untouched.
func (s *GCSArtifactStore) Save(ctx context.Context, result *models.RunResult) (string, error) {
	objects, err := artifactObjects(result)
	if err != nil {
		return "", err
	}
	logCtx := slog.With("runId", result.RunID, "bucket", s.bucket)
	logCtx.Info("Starting concurrent upload of artifacts.", "objects", len(objects))

	bucket := s.client.Bucket(s.bucket)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for _, obj := range objects {
		eg.Go(func() error {
			if err := gcp.SaveToGCSAtomically(gctx, bucket, obj.Name, obj.ContentType, obj.Content); err != nil {
				return fmt.Errorf("%s: %w", obj.Name, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", fmt.Errorf("one or more artifacts failed to upload: %w", err)
	}

	prefix := fmt.Sprintf("gs://%s/%s/", s.bucket, result.RunID)
	logCtx.Info("All artifacts uploaded successfully.", "prefix", prefix)
	return prefix, nil
}

var _ ArtifactStore = (*GCSArtifactStore)(nil)

// WriteArtifacts writes the same layout as GCSArtifactStore below dir.
func WriteArtifacts(dir string, result *models.RunResult) error {
	objects, err := artifactObjects(result)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		path := filepath.Join(dir, filepath.FromSlash(obj.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, obj.Content, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
