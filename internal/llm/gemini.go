package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const providerGemini = "gemini"

// GeminiClient implements VisionModel and TextModel for the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a new Gemini client authenticated with an API key.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required for Gemini")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
	}, nil
}

// Describe sends the prompt and images as a single user turn.
func (c *GeminiClient) Describe(ctx context.Context, req VisionRequest) (Generation, error) {
	if len(req.Images) == 0 {
		return Generation{}, callError(providerGemini, "describe", errors.New("at least one image is required"))
	}
	model := c.client.GenerativeModel(c.model)
	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(req.MaxOutputTokens)
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	for _, img := range req.Images {
		parts = append(parts, genai.Blob{MIMEType: img.MIMEType, Data: img.Data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return Generation{}, callError(providerGemini, "describe", err)
	}
	gen, err := geminiGeneration(resp)
	if err != nil {
		return Generation{}, callError(providerGemini, "describe", err)
	}
	return gen, nil
}

// Generate replays the transcript as chat history and sends the prompt.
func (c *GeminiClient) Generate(ctx context.Context, req TextRequest) (Generation, error) {
	model := c.client.GenerativeModel(c.model)
	if req.Sampling.Temperature != nil {
		model.SetTemperature(*req.Sampling.Temperature)
	}
	if req.Sampling.TopP != nil {
		model.SetTopP(*req.Sampling.TopP)
	}
	if req.Sampling.TopK != nil {
		model.SetTopK(*req.Sampling.TopK)
	}
	if req.Sampling.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(req.Sampling.MaxOutputTokens)
	}

	cs := model.StartChat()
	for _, m := range req.History {
		cs.History = append(cs.History, &genai.Content{
			Role:  string(m.Role),
			Parts: []genai.Part{genai.Text(m.Text)},
		})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(req.Prompt))
	if err != nil {
		return Generation{}, callError(providerGemini, "generate", err)
	}
	gen, err := geminiGeneration(resp)
	if err != nil {
		return Generation{}, callError(providerGemini, "generate", err)
	}
	return gen, nil
}

// Close releases resources held by the client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// geminiGeneration extracts text and usage from a Gemini API response.
func geminiGeneration(resp *genai.GenerateContentResponse) (Generation, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return Generation{}, fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return Generation{}, fmt.Errorf("no content in response (finish reason %v)", candidate.FinishReason)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	gen := Generation{
		Text:      b.String(),
		Truncated: candidate.FinishReason == genai.FinishReasonMaxTokens,
	}
	if resp.UsageMetadata != nil {
		gen.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return gen, nil
}

var (
	_ VisionModel = (*GeminiClient)(nil)
	_ TextModel   = (*GeminiClient)(nil)
)
