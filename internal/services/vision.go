package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/userstoryflow/internal/extract"
	"github.com/Lllllllleong/userstoryflow/internal/llm"
	"github.com/Lllllllleong/userstoryflow/internal/models"
	"github.com/Lllllllleong/userstoryflow/internal/prompts"
)

// StoryExtractor turns page images into user stories with a vision model.
type StoryExtractor struct {
	model     llm.VisionModel
	batch     bool
	maxTokens int32
}

// NewStoryExtractor creates a StoryExtractor. With batch set, every page is
// sent in a single request and yields one story text.
func NewStoryExtractor(model llm.VisionModel, batch bool, maxTokens int) (*StoryExtractor, error) {
	if model == nil {
		return nil, fmt.Errorf("NewStoryExtractor: model cannot be nil")
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("NewStoryExtractor: maxTokens must be positive")
	}
	return &StoryExtractor{model: model, batch: batch, maxTokens: int32(maxTokens)}, nil
}

// Analyze sends the pages to the vision model in order. A page that cannot
// be analyzed is recorded as a failure and skipped; the call only fails when
// no story at all was produced or the context is done.
func (s *StoryExtractor) Analyze(ctx context.Context, pages []extract.Page, obs Observer) (models.StorySequence, []models.StepFailure, error) {
	obs = observerOrNop(obs)
	var stories models.StorySequence
	if len(pages) == 0 {
		return stories, nil, fmt.Errorf("%w: no pages to analyze", ErrNoStories)
	}

	if s.batch {
		story, err := s.analyzeBatch(ctx, pages)
		if err != nil {
			return stories, nil, err
		}
		obs.StoryExtracted(stories.Append(story, pageNumbers(pages)...))
		return stories, nil, nil
	}

	var failures []models.StepFailure
	for i, page := range pages {
		logCtx := slog.With("image", i+1, "page", page.Number)

		text, err := s.describe(ctx, []extract.Page{page})
		if err != nil {
			if ctx.Err() != nil {
				return stories, failures, ctx.Err()
			}
			logCtx.Warn("Failed to analyze image, skipping.", "error", err)
			failures = append(failures, models.StepFailure{
				Stage:      StageAnalyzing,
				StoryIndex: stories.Len(),
				Page:       page.Number,
				Error:      err.Error(),
			})
			continue
		}
		story := stories.Append(text, page.Pages()...)
		logCtx.Info("Extracted user story.", "storyIndex", story.Index, "chars", len(text))
		obs.StoryExtracted(story)
	}

	if stories.Len() == 0 {
		return stories, failures, fmt.Errorf("%w: all %d images failed", ErrNoStories, len(pages))
	}
	return stories, failures, nil
}

func (s *StoryExtractor) analyzeBatch(ctx context.Context, pages []extract.Page) (string, error) {
	text, err := s.describe(ctx, pages)
	if err != nil {
		return "", fmt.Errorf("%w: batched analysis of %d images: %w", ErrNoStories, len(pages), err)
	}
	slog.Info("Extracted user stories from image batch.", "images", len(pages), "chars", len(text))
	return text, nil
}

func (s *StoryExtractor) describe(ctx context.Context, pages []extract.Page) (string, error) {
	images := make([]llm.InlineImage, 0, len(pages))
	for _, page := range pages {
		if page.Source == nil {
			return "", fmt.Errorf("page %d has no image", page.Number)
		}
		img, err := page.Source.Inline()
		if err != nil {
			return "", fmt.Errorf("failed to encode page %d: %w", page.Number, err)
		}
		images = append(images, img)
	}

	gen, err := s.model.Describe(ctx, llm.VisionRequest{
		Prompt:          prompts.StoryExtraction,
		Images:          images,
		MaxOutputTokens: s.maxTokens,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(gen.Text)
	if text == "" {
		return "", errors.New("model returned an empty story")
	}
	if err := llm.CheckRefusal(text); err != nil {
		return "", err
	}
	if gen.Truncated {
		slog.Warn("Story response hit the output limit and may be incomplete.", "outputTokens", gen.OutputTokens)
	}
	return text, nil
}

func pageNumbers(pages []extract.Page) []int {
	var numbers []int
	for _, p := range pages {
		numbers = append(numbers, p.Pages()...)
	}
	return numbers
}
