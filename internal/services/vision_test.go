package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Lllllllleong/userstoryflow/internal/extract"
	"github.com/Lllllllleong/userstoryflow/internal/llm"
	"github.com/Lllllllleong/userstoryflow/internal/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoryExtractor_PerImageSkipsFailedPages(t *testing.T) {
	model := &scriptedVisionModel{reply: func(n int, req llm.VisionRequest) (llm.Generation, error) {
		if n == 1 {
			return llm.Generation{}, fmt.Errorf("%w: 429", llm.ErrModelCall)
		}
		return llm.Generation{Text: fmt.Sprintf("  Feature: screen %d  \n", n)}, nil
	}}
	s, err := NewStoryExtractor(model, false, 1000)
	require.NoError(t, err)
	obs := &recordingObserver{}

	stories, failures, err := s.Analyze(context.Background(), rasterPages(3), obs)
	require.NoError(t, err)

	require.Equal(t, 2, stories.Len())
	assert.Equal(t, "Feature: screen 0", stories.At(0).Text)
	assert.Equal(t, []int{1}, stories.At(0).Pages)
	assert.Equal(t, 1, stories.At(1).Index)
	assert.Equal(t, []int{3}, stories.At(1).Pages)

	require.Len(t, failures, 1)
	assert.Equal(t, StageAnalyzing, failures[0].Stage)
	assert.Equal(t, 2, failures[0].Page)
	assert.Equal(t, []string{"story:0", "story:1"}, obs.events)

	require.Len(t, model.calls, 3)
	for _, c := range model.calls {
		assert.Equal(t, prompts.StoryExtraction, c.prompt)
		assert.Equal(t, 1, c.images)
		assert.EqualValues(t, 1000, c.maxTokens)
	}
}

func TestStoryExtractor_RefusalsAndEmptyAnswersAreSkipped(t *testing.T) {
	model := &scriptedVisionModel{reply: func(n int, _ llm.VisionRequest) (llm.Generation, error) {
		switch n {
		case 0:
			return llm.Generation{Text: "As a large language model I can't see this."}, nil
		case 1:
			return llm.Generation{Text: "   "}, nil
		default:
			return llm.Generation{Text: "Feature: Checkout"}, nil
		}
	}}
	s, err := NewStoryExtractor(model, false, 500)
	require.NoError(t, err)

	stories, failures, err := s.Analyze(context.Background(), rasterPages(3), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stories.Len())
	assert.Len(t, failures, 2)
}

func TestStoryExtractor_KeepsStoriesDescribingDeniedAccess(t *testing.T) {
	story := "As a suspended user, I want to see why I am blocked so that I can contact support.\n" +
		"Feature: Suspended account\n" +
		"  Scenario: Open the dashboard\n" +
		"    Given my account is suspended\n" +
		"    When I open the dashboard\n" +
		"    Then I am unable to access the dashboard"
	model := &scriptedVisionModel{reply: func(int, llm.VisionRequest) (llm.Generation, error) {
		return llm.Generation{Text: story}, nil
	}}
	s, err := NewStoryExtractor(model, false, 1000)
	require.NoError(t, err)

	stories, failures, err := s.Analyze(context.Background(), rasterPages(1), nil)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Equal(t, 1, stories.Len())
	assert.Equal(t, story, stories.At(0).Text)
}

func TestStoryExtractor_AllPagesFailing(t *testing.T) {
	model := &scriptedVisionModel{reply: func(int, llm.VisionRequest) (llm.Generation, error) {
		return llm.Generation{}, fmt.Errorf("%w: down", llm.ErrModelCall)
	}}
	s, err := NewStoryExtractor(model, false, 500)
	require.NoError(t, err)

	_, failures, err := s.Analyze(context.Background(), rasterPages(2), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoStories))
	assert.Len(t, failures, 2)
}

func TestStoryExtractor_BatchSendsEveryImageOnce(t *testing.T) {
	model := &scriptedVisionModel{reply: func(int, llm.VisionRequest) (llm.Generation, error) {
		return llm.Generation{Text: "Feature: Whole app"}, nil
	}}
	s, err := NewStoryExtractor(model, true, 1000)
	require.NoError(t, err)

	stories, failures, err := s.Analyze(context.Background(), rasterPages(3), nil)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, model.calls, 1)
	assert.Equal(t, 3, model.calls[0].images)
	require.Equal(t, 1, stories.Len())
	assert.Equal(t, []int{1, 2, 3}, stories.At(0).Pages)
}

func TestStoryExtractor_BatchFailureIsAnError(t *testing.T) {
	model := &scriptedVisionModel{reply: func(int, llm.VisionRequest) (llm.Generation, error) {
		return llm.Generation{}, fmt.Errorf("%w: too large", llm.ErrModelCall)
	}}
	s, err := NewStoryExtractor(model, true, 1000)
	require.NoError(t, err)

	_, _, err = s.Analyze(context.Background(), rasterPages(2), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoStories))
	assert.True(t, errors.Is(err, llm.ErrModelCall))
}

func TestStoryExtractor_CompositePageCoversEverySourcePage(t *testing.T) {
	model := &scriptedVisionModel{reply: func(int, llm.VisionRequest) (llm.Generation, error) {
		return llm.Generation{Text: "Feature: Composite"}, nil
	}}
	s, err := NewStoryExtractor(model, false, 1000)
	require.NoError(t, err)

	page := extract.Page{
		Source: extract.RasterImage{Image: blankPage(4, 8)},
		Layout: []extract.Slot{{PageNumber: 1, Height: 4}, {PageNumber: 2, Top: 4, Height: 4}},
	}
	stories, _, err := s.Analyze(context.Background(), []extract.Page{page}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, stories.At(0).Pages)
}

func TestStoryExtractor_StopsWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	model := &scriptedVisionModel{reply: func(int, llm.VisionRequest) (llm.Generation, error) {
		cancel()
		return llm.Generation{}, context.Canceled
	}}
	s, err := NewStoryExtractor(model, false, 1000)
	require.NoError(t, err)

	_, _, err = s.Analyze(ctx, rasterPages(3), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, model.calls, 1)
}

func TestNewStoryExtractor_Validation(t *testing.T) {
	_, err := NewStoryExtractor(nil, false, 10)
	assert.Error(t, err)
	_, err = NewStoryExtractor(&scriptedVisionModel{}, false, 0)
	assert.Error(t, err)
}
