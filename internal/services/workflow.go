package services

import (
	"context"
	"encoding/json"
	"fmt"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/userstoryflow/internal/models"
)

// Notifier hands a completed run to downstream processing.
type Notifier interface {
	Notify(ctx context.Context, payload models.WorkflowPayload) (string, error)
}

// WorkflowNotifier starts a Cloud Workflows execution per completed run.
type WorkflowNotifier struct {
	client *executions.Client
	parent string
}

// NewWorkflowNotifier creates a notifier for the given workflow.
func NewWorkflowNotifier(client *executions.Client, projectID, location, workflowID string) (*WorkflowNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("NewWorkflowNotifier: client cannot be nil")
	}
	if projectID == "" || location == "" || workflowID == "" {
		return nil, fmt.Errorf("NewWorkflowNotifier: projectID, location and workflowID are required")
	}
	return &WorkflowNotifier{client: client, parent: workflowParent(projectID, location, workflowID)}, nil
}

func workflowParent(projectID, location, workflowID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID)
}

// Notify creates the execution and returns its resource name.
func (n *WorkflowNotifier) Notify(ctx context.Context, payload models.WorkflowPayload) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: n.parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := n.client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	return exec.GetName(), nil
}

var _ Notifier = (*WorkflowNotifier)(nil)
