package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	providerOpenAI        = "openai"
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	finishReasonMaxTokens = "length"
)

// OpenAIClient implements VisionModel and TextModel using Chat Completions.
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIClient constructs a new OpenAI client. An empty baseURL selects
// the public API; any OpenAI-compatible endpoint can be used instead.
func NewOpenAIClient(apiKey, model, baseURL string, timeout time.Duration) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("model is required for OpenAI")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// chatMessage content is either a plain string or a list of parts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int32         `json:"max_tokens,omitempty"`
	Temperature *float32      `json:"temperature,omitempty"`
	TopP        *float32      `json:"top_p,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Describe sends the prompt and images as a single user turn.
func (c *OpenAIClient) Describe(ctx context.Context, req VisionRequest) (Generation, error) {
	if len(req.Images) == 0 {
		return Generation{}, callError(providerOpenAI, "describe", errors.New("at least one image is required"))
	}
	parts := []contentPart{{Type: "text", Text: req.Prompt}}
	for _, img := range req.Images {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: img.DataURI()},
		})
	}
	body := chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: parts}},
		MaxTokens: req.MaxOutputTokens,
	}
	gen, err := c.complete(ctx, body)
	if err != nil {
		return Generation{}, callError(providerOpenAI, "describe", err)
	}
	return gen, nil
}

// Generate sends the transcript followed by the prompt. TopK is not
// supported by the API and is ignored.
func (c *OpenAIClient) Generate(ctx context.Context, req TextRequest) (Generation, error) {
	messages := make([]chatMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		role := "user"
		if m.Role == RoleModel {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: m.Text})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.Sampling.MaxOutputTokens,
		Temperature: req.Sampling.Temperature,
		TopP:        req.Sampling.TopP,
	}
	gen, err := c.complete(ctx, body)
	if err != nil {
		return Generation{}, callError(providerOpenAI, "generate", err)
	}
	return gen, nil
}

func (c *OpenAIClient) complete(ctx context.Context, body chatRequest) (Generation, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Generation{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Generation{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return Generation{}, fmt.Errorf("openai request timeout: %w", err)
		}
		return Generation{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Generation{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Generation{}, fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(raw))
		}
		return Generation{}, fmt.Errorf("openai response parse: %w", err)
	}
	if parsed.Error != nil {
		return Generation{}, fmt.Errorf("openai error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if resp.StatusCode != http.StatusOK {
		return Generation{}, fmt.Errorf("openai returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return Generation{}, fmt.Errorf("openai response missing choices")
	}

	choice := parsed.Choices[0]
	gen := Generation{
		Text:      choice.Message.Content,
		Truncated: choice.FinishReason == finishReasonMaxTokens,
	}
	if parsed.Usage != nil {
		gen.OutputTokens = parsed.Usage.CompletionTokens
		slog.Debug("OpenAI usage.",
			"model", c.model,
			"promptTokens", parsed.Usage.PromptTokens,
			"completionTokens", parsed.Usage.CompletionTokens,
			"totalTokens", parsed.Usage.TotalTokens,
		)
	}
	return gen, nil
}

var (
	_ VisionModel = (*OpenAIClient)(nil)
	_ TextModel   = (*OpenAIClient)(nil)
)
