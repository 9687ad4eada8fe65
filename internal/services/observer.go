package services

import (
	"context"

	"github.com/Lllllllleong/userstoryflow/internal/models"
)

// Pipeline stages reported to observers.
const (
	StageExtracting = "extracting"
	StageAnalyzing  = "analyzing"
	StageSchema     = "schema"
	StageCodegen    = "codegen"
)

// stageStatus maps stages to the run record status.
var stageStatus = map[string]string{
	StageExtracting: models.StatusExtracting,
	StageAnalyzing:  models.StatusAnalyzing,
	StageSchema:     models.StatusSchema,
	StageCodegen:    models.StatusCodegen,
}

// Observer receives intermediate artifacts in the order they are produced.
type Observer interface {
	StageStarted(ctx context.Context, stage string)
	StoryExtracted(story models.UserStory)
	SchemaUpdated(v models.SchemaVersion)
	CodeUpdated(v models.CodeVersion)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StageStarted(context.Context, string)  {}
func (NopObserver) StoryExtracted(models.UserStory)       {}
func (NopObserver) SchemaUpdated(models.SchemaVersion)    {}
func (NopObserver) CodeUpdated(models.CodeVersion)        {}

func observerOrNop(obs Observer) Observer {
	if obs == nil {
		return NopObserver{}
	}
	return obs
}
