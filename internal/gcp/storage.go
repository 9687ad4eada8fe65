package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt reads an integer environment variable, returning fallback when
// unset or malformed.
func GetEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Ignoring malformed integer environment variable.", "key", key, "value", raw)
		return fallback
	}
	return v
}

// GetEnvBool reads a boolean environment variable, returning fallback when
// unset or malformed.
func GetEnvBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(GetEnv(key, ""))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("Ignoring malformed boolean environment variable.", "key", key, "value", raw)
		return fallback
	}
	return v
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(content); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	// The precondition is only evaluated when the upload is finalized.
	if err := writer.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			slog.Info("SKIPPING: Object already exists.", "object", objectName)
			return nil
		}
		slog.Error("Failed to finalize GCS write", "object", objectName, "error", err)
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// ReadObject returns the object's content and its custom metadata.
func ReadObject(ctx context.Context, client *storage.Client, bucket, object string) ([]byte, map[string]string, error) {
	handle := client.Bucket(bucket).Object(object)
	attrs, err := handle.Attrs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get attrs for gs://%s/%s: %w", bucket, object, err)
	}

	reader, err := handle.NewReader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	return data, attrs.Metadata, nil
}
