package gcp

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// NewFirestoreClient creates a Firestore client for the project that holds
// the run records.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// Fields is a set of top-level document fields to update. Empty string
// values are dropped so that optional details never overwrite stored ones.
type Fields map[string]any

// Updates turns the fields into a deterministic update list.
func (f Fields) Updates() []firestore.Update {
	paths := make([]string, 0, len(f))
	for path, v := range f {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	updates := make([]firestore.Update, 0, len(paths))
	for _, path := range paths {
		updates = append(updates, firestore.Update{Path: path, Value: f[path]})
	}
	return updates
}

// UpdateFields applies the fields to an existing document.
func UpdateFields(ctx context.Context, ref *firestore.DocumentRef, fields Fields) error {
	updates := fields.Updates()
	if len(updates) == 0 {
		return nil
	}
	_, err := ref.Update(ctx, updates)
	return err
}

// FirstMatch returns the ID of the first document the query yields.
func FirstMatch(ctx context.Context, q firestore.Query) (string, bool, error) {
	iter := q.Limit(1).Documents(ctx)
	defer iter.Stop()
	doc, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return doc.Ref.ID, true, nil
}
