package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/userstoryflow/internal/extract"
	"github.com/Lllllllleong/userstoryflow/internal/gcp"
)

// NewPipelineFromConfig builds the models, stages and optional cloud
// integrations described by cfg. The caller must Close the pipeline.
func NewPipelineFromConfig(ctx context.Context, cfg Config) (p *Pipeline, err error) {
	var owned []io.Closer
	defer func() {
		if err != nil {
			_ = closeAll(owned)
		}
	}()

	extractor, err := extract.NewExtractor(
		extract.Config{Strategy: cfg.Strategy},
		extract.NewFitzRenderer(cfg.RenderDPI),
		extract.PDFCPUInspector{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	m, err := NewModels(ctx, cfg)
	if err != nil {
		return nil, err
	}
	owned = append(owned, m)

	stories, err := NewStoryExtractor(m.Vision, cfg.BatchImages, cfg.VisionMaxTokens)
	if err != nil {
		return nil, err
	}
	schema, err := NewSchemaSynthesizer(m.Text, cfg.Sampling(), cfg.FailurePolicy)
	if err != nil {
		return nil, err
	}
	code, err := NewCodeGenerator(m.Text, CodeGeneratorConfig{
		Sampling:         cfg.Sampling(),
		Policy:           cfg.FailurePolicy,
		TokenCeiling:     cfg.ContinuationTokenCeiling,
		MaxContinuations: cfg.MaxContinuations,
		MaxLines:         cfg.MaxCodeLines,
	})
	if err != nil {
		return nil, err
	}

	var opts PipelineOptions
	if cfg.ArtifactsBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Storage client: %w", err)
		}
		owned = append(owned, storageClient)
		if opts.Store, err = NewGCSArtifactStore(storageClient, cfg.ArtifactsBucket); err != nil {
			return nil, err
		}
	}
	if cfg.ProjectID != "" {
		firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		owned = append(owned, firestoreClient)
		if opts.Recorder, err = NewFirestoreRunRecorder(firestoreClient, cfg.FirestoreCollection); err != nil {
			return nil, err
		}
	}
	if cfg.WorkflowID != "" {
		executionsClient, err := executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		owned = append(owned, executionsClient)
		if opts.Notifier, err = NewWorkflowNotifier(executionsClient, cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID); err != nil {
			return nil, err
		}
	}

	p, err = NewPipeline(extractor, stories, schema, code, opts)
	if err != nil {
		return nil, err
	}
	p.closers = owned
	slog.Info("Story pipeline initialized.",
		"strategy", cfg.Strategy,
		"batchImages", cfg.BatchImages,
		"failurePolicy", cfg.FailurePolicy,
		"artifacts", opts.Store != nil,
		"runRecords", opts.Recorder != nil,
		"workflowId", cfg.WorkflowID)
	return p, nil
}
