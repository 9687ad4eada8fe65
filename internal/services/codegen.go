package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/userstoryflow/internal/llm"
	"github.com/Lllllllleong/userstoryflow/internal/models"
	"github.com/Lllllllleong/userstoryflow/internal/prompts"
)

// CodeGeneratorConfig holds the limits for code generation.
type CodeGeneratorConfig struct {
	Sampling llm.Sampling
	Policy   models.FailurePolicy
	// TokenCeiling is the output token count above which a response is
	// treated as truncated.
	TokenCeiling     int
	MaxContinuations int
	MaxLines         int
}

// CodeGenerator writes boilerplate code for the whole story set and then
// refines it one story at a time.
type CodeGenerator struct {
	model  llm.TextModel
	config CodeGeneratorConfig
}

// NewCodeGenerator creates a CodeGenerator.
func NewCodeGenerator(model llm.TextModel, cfg CodeGeneratorConfig) (*CodeGenerator, error) {
	if model == nil {
		return nil, fmt.Errorf("NewCodeGenerator: model cannot be nil")
	}
	if cfg.TokenCeiling <= 0 {
		return nil, fmt.Errorf("NewCodeGenerator: token ceiling must be positive")
	}
	if cfg.MaxContinuations < 0 {
		return nil, fmt.Errorf("NewCodeGenerator: max continuations cannot be negative")
	}
	if cfg.Policy == "" {
		cfg.Policy = models.FailureAbort
	}
	return &CodeGenerator{model: model, config: cfg}, nil
}

// Fold issues one boilerplate call followed by one refinement call per story.
// Any response over the token ceiling is completed with continuation calls
// that replay the transcript of the fold so far.
func (g *CodeGenerator) Fold(ctx context.Context, stories *models.StorySequence, schema string, genCtx models.GenerationContext, obs Observer) (models.CodeHistory, []models.StepFailure, error) {
	obs = observerOrNop(obs)
	var history models.CodeHistory
	var failures []models.StepFailure
	var transcript []llm.Message

	if stories.Len() == 0 {
		return history, nil, fmt.Errorf("%w: nothing to generate code from", ErrNoStories)
	}

	logCtx := slog.With("stage", StageCodegen, "language", genCtx.Language, "framework", genCtx.Framework)

	prompt, err := prompts.Boilerplate(prompts.CodeInput{
		Stories:  stories.Concat(stories.Len() - 1),
		Schema:   schema,
		Context:  genCtx,
		MaxLines: g.config.MaxLines,
	})
	if err != nil {
		return history, nil, err
	}
	text, continuations, err := g.complete(ctx, prompt, &transcript)
	if err != nil {
		logCtx.Error("Boilerplate generation failed.", "error", err)
		return history, nil, fmt.Errorf("boilerplate: %w", err)
	}
	v := history.Add(models.BoilerplateStoryIndex, text, continuations)
	logCtx.Info("Boilerplate generated.", "chars", len(text), "continuations", continuations)
	obs.CodeUpdated(v)

	for i := 0; i < stories.Len(); i++ {
		stepLog := logCtx.With("storyIndex", i)

		prompt, err := prompts.Refine(prompts.CodeInput{
			Story:        stories.At(i).Text,
			StoriesSoFar: stories.Concat(i),
			Code:         history.Current(),
			Schema:       schema,
			Context:      genCtx,
			MaxLines:     g.config.MaxLines,
		})
		if err != nil {
			return history, failures, err
		}

		text, continuations, err := g.complete(ctx, prompt, &transcript)
		if err != nil {
			if g.config.Policy != models.FailureSkip || ctx.Err() != nil {
				stepLog.Error("Refinement failed, aborting fold.", "error", err)
				return history, failures, fmt.Errorf("refinement %d: %w", i+1, err)
			}
			stepLog.Warn("Refinement failed, keeping previous code.", "error", err)
			failures = append(failures, models.StepFailure{Stage: StageCodegen, StoryIndex: i, Error: err.Error()})
			continue
		}
		v := history.Add(i, text, continuations)
		stepLog.Info("Code refined.", "step", v.Step, "chars", len(text), "continuations", continuations)
		obs.CodeUpdated(v)
	}
	return history, failures, nil
}

// complete sends the prompt and keeps asking for the remaining tail while
// the reported output exceeds the ceiling. It returns the assembled code and
// the number of continuation calls made.
func (g *CodeGenerator) complete(ctx context.Context, prompt string, transcript *[]llm.Message) (string, int, error) {
	gen, err := g.model.Generate(ctx, llm.TextRequest{Prompt: prompt, Sampling: g.config.Sampling})
	if err != nil {
		return "", 0, err
	}
	*transcript = append(*transcript,
		llm.Message{Role: llm.RoleUser, Text: prompt},
		llm.Message{Role: llm.RoleModel, Text: gen.Text},
	)

	var b strings.Builder
	b.WriteString(gen.Text)

	continuations := 0
	previous := ""
	for g.truncated(gen) {
		if continuations >= g.config.MaxContinuations {
			return "", continuations, fmt.Errorf("%w: still truncated after %d continuations (%d output tokens)",
				ErrTruncationOverrun, continuations, gen.OutputTokens)
		}
		slog.Info("Response truncated, requesting continuation.",
			"outputTokens", gen.OutputTokens, "ceiling", g.config.TokenCeiling, "attempt", continuations+1)

		gen, err = g.model.Generate(ctx, llm.TextRequest{
			History:  *transcript,
			Prompt:   prompts.ContinueCode,
			Sampling: g.config.Sampling,
		})
		if err != nil {
			return "", continuations, fmt.Errorf("continuation %d: %w", continuations+1, err)
		}
		continuations++

		tail := trimContinuation(gen.Text)
		if strings.TrimSpace(tail) == "" {
			return "", continuations, fmt.Errorf("%w: continuation %d was empty", ErrTruncationOverrun, continuations)
		}
		if tail == previous {
			return "", continuations, fmt.Errorf("%w: continuation %d repeated the previous one", ErrTruncationOverrun, continuations)
		}
		previous = tail

		*transcript = append(*transcript,
			llm.Message{Role: llm.RoleUser, Text: prompts.ContinueCode},
			llm.Message{Role: llm.RoleModel, Text: tail},
		)
		b.WriteString(tail)
	}

	return llm.StripFences(b.String()), continuations, nil
}

func (g *CodeGenerator) truncated(gen llm.Generation) bool {
	return gen.OutputTokens > g.config.TokenCeiling || gen.Truncated
}

// trimContinuation drops an opening fence line the model sometimes repeats
// at the start of a continuation.
func trimContinuation(text string) string {
	if !strings.HasPrefix(strings.TrimLeft(text, " \t\r\n"), "```") {
		return text
	}
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		return trimmed[nl+1:]
	}
	return ""
}
