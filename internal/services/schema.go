package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/userstoryflow/internal/llm"
	"github.com/Lllllllleong/userstoryflow/internal/models"
	"github.com/Lllllllleong/userstoryflow/internal/prompts"
	"gopkg.in/yaml.v3"
)

// SchemaSynthesizer folds user stories into a YAML schema, one model call
// per story.
type SchemaSynthesizer struct {
	model    llm.TextModel
	sampling llm.Sampling
	policy   models.FailurePolicy
}

// NewSchemaSynthesizer creates a SchemaSynthesizer.
func NewSchemaSynthesizer(model llm.TextModel, sampling llm.Sampling, policy models.FailurePolicy) (*SchemaSynthesizer, error) {
	if model == nil {
		return nil, fmt.Errorf("NewSchemaSynthesizer: model cannot be nil")
	}
	if policy == "" {
		policy = models.FailureAbort
	}
	return &SchemaSynthesizer{model: model, sampling: sampling, policy: policy}, nil
}

// Fold issues one call per story. Each call sees the story, every story up
// to and including it, and the schema from the last successful call.
func (s *SchemaSynthesizer) Fold(ctx context.Context, stories *models.StorySequence, obs Observer) (models.SchemaHistory, []models.StepFailure, error) {
	obs = observerOrNop(obs)
	var history models.SchemaHistory
	var failures []models.StepFailure

	for i := 0; i < stories.Len(); i++ {
		logCtx := slog.With("stage", StageSchema, "storyIndex", i)

		text, err := s.step(ctx, stories, i, history.Current())
		if err != nil {
			if s.policy != models.FailureSkip || ctx.Err() != nil {
				logCtx.Error("Schema step failed, aborting fold.", "error", err)
				return history, failures, fmt.Errorf("schema step %d: %w", i+1, err)
			}
			logCtx.Warn("Schema step failed, keeping previous schema.", "error", err)
			failures = append(failures, models.StepFailure{Stage: StageSchema, StoryIndex: i, Error: err.Error()})
			continue
		}

		tables, err := inspectSchema(text)
		if err != nil {
			logCtx.Warn("Schema output is not valid YAML.", "error", err)
		}
		v := history.Add(i, text, tables)
		logCtx.Info("Schema updated.", "step", v.Step, "tables", len(tables))
		obs.SchemaUpdated(v)
	}
	return history, failures, nil
}

func (s *SchemaSynthesizer) step(ctx context.Context, stories *models.StorySequence, i int, previous string) (string, error) {
	prompt, err := prompts.Schema(prompts.SchemaInput{
		Story:          stories.At(i).Text,
		StoriesSoFar:   stories.Concat(i),
		PreviousSchema: previous,
	})
	if err != nil {
		return "", err
	}
	gen, err := s.model.Generate(ctx, llm.TextRequest{Prompt: prompt, Sampling: s.sampling})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(llm.StripFences(gen.Text))
	if text == "" {
		return "", fmt.Errorf("%w: empty schema", llm.ErrModelCall)
	}
	if err := llm.CheckRefusal(text); err != nil {
		return "", err
	}
	return text, nil
}

// inspectSchema parses the schema and lists its table names in document
// order. Tables may be a "tables" mapping, a "tables" list of named
// entries, or top-level keys.
func inspectSchema(text string) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, nil
	}
	root := doc.Content[0]
	node := root
	if tables := mappingValue(root, "tables"); tables != nil {
		node = tables
	}

	var names []string
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			if key == "seed" || key == "seed_data" {
				continue
			}
			names = append(names, key)
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.MappingNode {
				continue
			}
			if name := mappingValue(item, "name"); name != nil && name.Kind == yaml.ScalarNode {
				names = append(names, name.Value)
			}
		}
	}
	return names, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
