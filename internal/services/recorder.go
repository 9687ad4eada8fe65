package services

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/userstoryflow/internal/gcp"
	"github.com/Lllllllleong/userstoryflow/internal/models"
)

// RunRecorder persists the status of each run.
type RunRecorder interface {
	// FindCompleted returns the ID of a completed run with the fingerprint.
	FindCompleted(ctx context.Context, fingerprint string) (string, bool, error)
	Create(ctx context.Context, record models.RunRecord) error
	UpdateStatus(ctx context.Context, runID, status, errDetails string) error
	Complete(ctx context.Context, result *models.RunResult) error
	SetWorkflowExecution(ctx context.Context, runID, executionID string) error
}

// FirestoreRunRecorder stores one document per run, keyed by run ID.
type FirestoreRunRecorder struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreRunRecorder creates a recorder writing to the given collection.
func NewFirestoreRunRecorder(client *firestore.Client, collection string) (*FirestoreRunRecorder, error) {
	if client == nil {
		return nil, fmt.Errorf("NewFirestoreRunRecorder: client cannot be nil")
	}
	if collection == "" {
		return nil, fmt.Errorf("NewFirestoreRunRecorder: collection cannot be empty")
	}
	return &FirestoreRunRecorder{client: client, collection: collection}, nil
}

func (r *FirestoreRunRecorder) doc(runID string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(runID)
}

func (r *FirestoreRunRecorder) FindCompleted(ctx context.Context, fingerprint string) (string, bool, error) {
	q := r.client.Collection(r.collection).
		Where("fingerprint", "==", fingerprint).
		Where("status", "==", models.StatusCompleted)
	id, found, err := gcp.FirstMatch(ctx, q)
	if err != nil {
		return "", false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	return id, found, nil
}

func (r *FirestoreRunRecorder) Create(ctx context.Context, record models.RunRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if _, err := r.doc(record.RunID).Create(ctx, record); err != nil {
		return fmt.Errorf("failed to create run document: %w", err)
	}
	return nil
}

func (r *FirestoreRunRecorder) UpdateStatus(ctx context.Context, runID, status, errDetails string) error {
	fields := gcp.Fields{"status": status, "errorDetails": errDetails}
	if err := gcp.UpdateFields(ctx, r.doc(runID), fields); err != nil {
		return fmt.Errorf("failed to update status to %s: %w", status, err)
	}
	return nil
}

func (r *FirestoreRunRecorder) Complete(ctx context.Context, result *models.RunResult) error {
	fields := gcp.Fields{
		"status":          models.StatusCompleted,
		"pageCount":       result.PageCount,
		"storyCount":      len(result.Stories),
		"artifactsPrefix": result.ArtifactsPrefix,
	}
	if err := gcp.UpdateFields(ctx, r.doc(result.RunID), fields); err != nil {
		return fmt.Errorf("failed to mark run completed: %w", err)
	}
	return nil
}

func (r *FirestoreRunRecorder) SetWorkflowExecution(ctx context.Context, runID, executionID string) error {
	if err := gcp.UpdateFields(ctx, r.doc(runID), gcp.Fields{"workflowExecutionId": executionID}); err != nil {
		return fmt.Errorf("failed to record workflow execution: %w", err)
	}
	return nil
}

var _ RunRecorder = (*FirestoreRunRecorder)(nil)
