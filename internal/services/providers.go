package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/userstoryflow/internal/gcp"
	"github.com/Lllllllleong/userstoryflow/internal/llm"
)

// Models holds the vision and text models for the process lifetime.
type Models struct {
	Vision  llm.VisionModel
	Text    llm.TextModel
	closers []io.Closer
}

// NewModels builds the configured vision and text models. A Vertex AI
// client is shared when both steps use Vertex AI.
func NewModels(ctx context.Context, cfg Config) (*Models, error) {
	m := &Models{}

	var vertex *gcp.VertexClient
	if cfg.VisionProvider == ProviderVertex || cfg.TextProvider == ProviderVertex {
		visionModel, textModel := cfg.VisionModel, cfg.TextModel
		if cfg.VisionProvider != ProviderVertex {
			visionModel = textModel
		}
		if cfg.TextProvider != ProviderVertex {
			textModel = visionModel
		}
		client, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, visionModel, textModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
		}
		vertex = client
		m.closers = append(m.closers, client)
	}

	vision, err := m.build(ctx, cfg, cfg.VisionProvider, cfg.VisionModel, vertex)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("vision model: %w", err)
	}
	visionModel, ok := vision.(llm.VisionModel)
	if !ok {
		_ = m.Close()
		return nil, fmt.Errorf("provider %q does not support images", cfg.VisionProvider)
	}
	m.Vision = visionModel

	text, err := m.build(ctx, cfg, cfg.TextProvider, cfg.TextModel, vertex)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("text model: %w", err)
	}
	m.Text = text

	slog.Info("Models initialized.",
		"visionProvider", cfg.VisionProvider, "visionModel", cfg.VisionModel,
		"textProvider", cfg.TextProvider, "textModel", cfg.TextModel)
	return m, nil
}

func (m *Models) build(ctx context.Context, cfg Config, provider Provider, model string, vertex *gcp.VertexClient) (llm.TextModel, error) {
	switch provider {
	case ProviderOpenAI:
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, model, cfg.OpenAIBaseURL, cfg.RequestTimeout)
	case ProviderGemini:
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, model)
		if err != nil {
			return nil, err
		}
		m.closers = append(m.closers, client)
		return client, nil
	case ProviderVertex:
		return vertex, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// Close releases every client created by NewModels.
func (m *Models) Close() error {
	err := closeAll(m.closers)
	m.closers = nil
	return err
}
