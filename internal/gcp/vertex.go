package gcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/userstoryflow/internal/llm"
)

const providerVertex = "vertex"

// VisionSystemPrompt frames the vision model for user story extraction.
const VisionSystemPrompt = "You are a business analyst. You read screenshots, mockups and manual pages and turn every visible field, button and piece of text into detailed user stories written in Gherkin."

// GeneratorSystemPrompt frames the text model for schema and code generation.
const GeneratorSystemPrompt = "You are a senior software engineer. You design normalized data schemas and write complete, working application code. You never leave placeholders for the reader to fill in."

// VertexClient holds the pre-configured generative models used by the pipeline.
type VertexClient struct {
	VisionModel    *genai.GenerativeModel
	GeneratorModel *genai.GenerativeModel
	baseClient     *genai.Client
}

// NewVertexClient creates a new client holding the vision and generator models.
func NewVertexClient(ctx context.Context, projectID, region, visionModel, generatorModel string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if visionModel == "" || generatorModel == "" {
		return nil, fmt.Errorf("NewVertexClient: model names cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the vision model ---
	vision := baseClient.GenerativeModel(visionModel)
	vision.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(VisionSystemPrompt)},
	}
	vision.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	// --- Configure the generator model ---
	generator := baseClient.GenerativeModel(generatorModel)
	generator.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(GeneratorSystemPrompt)},
	}

	return &VertexClient{
		VisionModel:    vision,
		GeneratorModel: generator,
		baseClient:     baseClient,
	}, nil
}

// Describe sends the prompt and images to the vision model as one user turn.
func (c *VertexClient) Describe(ctx context.Context, req llm.VisionRequest) (llm.Generation, error) {
	if len(req.Images) == 0 {
		return llm.Generation{}, &llm.CallError{Provider: providerVertex, Op: "describe", Err: errors.New("at least one image is required")}
	}

	// Copy so per-call limits do not leak into the shared model.
	model := *c.VisionModel
	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(req.MaxOutputTokens)
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	for _, img := range req.Images {
		parts = append(parts, genai.Blob{MIMEType: img.MIMEType, Data: img.Data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return llm.Generation{}, &llm.CallError{Provider: providerVertex, Op: "describe", Err: err}
	}
	gen, err := vertexGeneration(resp)
	if err != nil {
		return llm.Generation{}, &llm.CallError{Provider: providerVertex, Op: "describe", Err: err}
	}
	return gen, nil
}

// Generate replays the transcript as chat history on the generator model.
func (c *VertexClient) Generate(ctx context.Context, req llm.TextRequest) (llm.Generation, error) {
	model := *c.GeneratorModel
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
		return llm.Generation{}, &llm.CallError{Provider: providerVertex, Op: "generate", Err: err}
	}
	gen, err := vertexGeneration(resp)
	if err != nil {
		return llm.Generation{}, &llm.CallError{Provider: providerVertex, Op: "generate", Err: err}
	}
	return gen, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// vertexGeneration parses the model's response and robustly extracts text content.
func vertexGeneration(resp *genai.GenerateContentResponse) (llm.Generation, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return llm.Generation{}, fmt.Errorf("empty response from gemini")
	}

	candidate := resp.Candidates[0]
	var content strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			content.WriteString(string(txt))
		}
	}

	gen := llm.Generation{
		Text:      content.String(),
		Truncated: candidate.FinishReason == genai.FinishReasonMaxTokens,
	}
	if resp.UsageMetadata != nil {
		gen.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return gen, nil
}

var (
	_ llm.VisionModel = (*VertexClient)(nil)
	_ llm.TextModel   = (*VertexClient)(nil)
)
