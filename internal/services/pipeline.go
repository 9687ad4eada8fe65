package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Lllllllleong/userstoryflow/internal/extract"
	"github.com/Lllllllleong/userstoryflow/internal/models"
	"github.com/google/uuid"
)

// PipelineOptions holds the optional integrations of a Pipeline. Nil
// members are skipped.
type PipelineOptions struct {
	Store    ArtifactStore
	Recorder RunRecorder
	Notifier Notifier
}

// Pipeline runs document extraction, story analysis, schema synthesis and
// code generation in sequence.
type Pipeline struct {
	extractor *extract.Extractor
	stories   *StoryExtractor
	schema    *SchemaSynthesizer
	code      *CodeGenerator
	opts      PipelineOptions
	closers   []io.Closer
}

// NewPipeline wires the pipeline stages together.
func NewPipeline(extractor *extract.Extractor, stories *StoryExtractor, schema *SchemaSynthesizer, code *CodeGenerator, opts PipelineOptions) (*Pipeline, error) {
	if extractor == nil || stories == nil || schema == nil || code == nil {
		return nil, fmt.Errorf("NewPipeline: every stage is required")
	}
	return &Pipeline{
		extractor: extractor,
		stories:   stories,
		schema:    schema,
		code:      code,
		opts:      opts,
	}, nil
}

// FileHash returns the hex SHA-256 of the document bytes.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint identifies a document together with the generation settings.
// Two runs with the same fingerprint produce equivalent output.
func Fingerprint(fileHash string, genCtx models.GenerationContext) string {
	sum := sha256.Sum256([]byte(fileHash + "|" + genCtx.Key()))
	return hex.EncodeToString(sum[:])
}

// Run processes one document. When req.SkipIfCompleted is set, a recorder
// is configured and an identical run already completed, it returns a
// *DuplicateRunError. Otherwise every call generates fresh output.
func (p *Pipeline) Run(ctx context.Context, req models.PipelineRequest, obs Observer) (*models.RunResult, error) {
	obs = observerOrNop(obs)
	if err := req.Context.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generation context: %w", err)
	}

	fileHash := FileHash(req.Upload.Data)
	fingerprint := Fingerprint(fileHash, req.Context)
	logCtx := slog.With("filename", req.Upload.Filename, "fileHash", fileHash)

	if req.SkipIfCompleted && p.opts.Recorder != nil {
		existing, found, err := p.opts.Recorder.FindCompleted(ctx, fingerprint)
		if err != nil {
			logCtx.Error("Failed to check for duplicate", "error", err)
			return nil, err
		}
		if found {
			logCtx.Info("Duplicate run detected. Skipping.", "existingRunId", existing)
			return nil, &DuplicateRunError{RunID: existing}
		}
	}

	result := &models.RunResult{
		RunID:       uuid.NewString(),
		Filename:    req.Upload.Filename,
		FileHash:    fileHash,
		Fingerprint: fingerprint,
		Context:     req.Context,
		StartedAt:   time.Now(),
	}
	logCtx = logCtx.With("runId", result.RunID)
	logCtx.Info("Starting pipeline run.", "strategy", p.extractor.Strategy(), "language", req.Context.Language)

	if p.opts.Recorder != nil {
		err := p.opts.Recorder.Create(ctx, models.RunRecord{
			RunID:            result.RunID,
			FileHash:         fileHash,
			Fingerprint:      fingerprint,
			OriginalFilename: req.Upload.Filename,
			Status:           models.StatusExtracting,
			CreatedAt:        result.StartedAt,
		})
		if err != nil {
			logCtx.Error("Failed to create run record", "error", err)
			return nil, err
		}
	}

	p.enter(ctx, logCtx, result.RunID, StageExtracting, obs)
	pages, err := p.extractor.Extract(ctx, req.Upload.Data)
	if err != nil {
		return nil, p.fail(ctx, logCtx, result.RunID, "failed to extract page images", err)
	}
	for _, page := range pages {
		result.PageCount += len(page.Pages())
	}
	logCtx.Info("Extracted page images.", "images", len(pages), "pages", result.PageCount)

	p.enter(ctx, logCtx, result.RunID, StageAnalyzing, obs)
	stories, failures, err := p.stories.Analyze(ctx, pages, obs)
	result.Failures = append(result.Failures, failures...)
	if err != nil {
		return nil, p.fail(ctx, logCtx, result.RunID, "failed to extract user stories", err)
	}
	result.Stories = stories.All()
	logCtx.Info("User stories extracted.", "stories", stories.Len(), "skipped", len(failures))

	p.enter(ctx, logCtx, result.RunID, StageSchema, obs)
	schema, failures, err := p.schema.Fold(ctx, &stories, obs)
	result.Failures = append(result.Failures, failures...)
	if err != nil {
		return nil, p.fail(ctx, logCtx, result.RunID, "schema synthesis failed", err)
	}
	result.Schema = schema

	p.enter(ctx, logCtx, result.RunID, StageCodegen, obs)
	code, failures, err := p.code.Fold(ctx, &stories, schema.Current(), req.Context, obs)
	result.Failures = append(result.Failures, failures...)
	if err != nil {
		return nil, p.fail(ctx, logCtx, result.RunID, "code generation failed", err)
	}
	result.Code = code
	result.FinishedAt = time.Now()

	if err := p.finish(ctx, logCtx, result); err != nil {
		return nil, err
	}
	logCtx.Info("Pipeline run complete.",
		"schemaVersions", len(result.Schema.Versions),
		"codeVersions", len(result.Code.Versions),
		"failures", len(result.Failures),
		"duration", result.FinishedAt.Sub(result.StartedAt).String())
	return result, nil
}

// finish persists artifacts, marks the run completed and hands it off.
func (p *Pipeline) finish(ctx context.Context, logCtx *slog.Logger, result *models.RunResult) error {
	if p.opts.Store != nil {
		prefix, err := p.opts.Store.Save(ctx, result)
		if err != nil {
			return p.fail(ctx, logCtx, result.RunID, "failed to save artifacts", err)
		}
		result.ArtifactsPrefix = prefix
	}
	if p.opts.Recorder != nil {
		if err := p.opts.Recorder.Complete(ctx, result); err != nil {
			return p.fail(ctx, logCtx, result.RunID, "failed to record completion", err)
		}
	}
	if p.opts.Notifier != nil {
		logCtx.Info("Triggering workflow.")
		executionID, err := p.opts.Notifier.Notify(ctx, models.WorkflowPayload{
			RunID:           result.RunID,
			ArtifactsPrefix: result.ArtifactsPrefix,
			StoryCount:      len(result.Stories),
		})
		if err != nil {
			return p.fail(ctx, logCtx, result.RunID, "failed to trigger workflow execution", err)
		}
		if p.opts.Recorder != nil {
			if err := p.opts.Recorder.SetWorkflowExecution(ctx, result.RunID, executionID); err != nil {
				logCtx.Warn("Failed to record workflow execution.", "error", err)
			}
		}
		logCtx.Info("Hand-off to workflow complete.", "execution", executionID)
	}
	return nil
}

func (p *Pipeline) enter(ctx context.Context, logCtx *slog.Logger, runID, stage string, obs Observer) {
	logCtx.Info("Entering stage.", "stage", stage)
	obs.StageStarted(ctx, stage)
	if p.opts.Recorder == nil || stage == StageExtracting {
		return
	}
	if err := p.opts.Recorder.UpdateStatus(ctx, runID, stageStatus[stage], ""); err != nil {
		logCtx.Warn("Failed to update run status.", "stage", stage, "error", err)
	}
}

func (p *Pipeline) fail(ctx context.Context, logCtx *slog.Logger, runID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	if p.opts.Recorder != nil {
		// The run context may already be cancelled.
		updateCtx := context.WithoutCancel(ctx)
		if err := p.opts.Recorder.UpdateStatus(updateCtx, runID, models.StatusFailed, fmt.Sprintf("%s: %v", message, originalErr)); err != nil {
			logCtx.Error("CRITICAL: Failed to update run status to FAILED after a processing error.", "updateError", err)
		}
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

// Close releases clients owned by the pipeline.
func (p *Pipeline) Close() error {
	err := closeAll(p.closers)
	p.closers = nil
	return err
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
