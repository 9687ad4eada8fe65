package services

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/userstoryflow/internal/extract"
	"github.com/Lllllllleong/userstoryflow/internal/gcp"
	"github.com/Lllllllleong/userstoryflow/internal/llm"
	"github.com/Lllllllleong/userstoryflow/internal/models"
	"github.com/go-playground/validator/v10"
)

// Provider names a hosted model backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderVertex Provider = "vertex"
)

// Config is everything the pipeline needs, read once at startup.
type Config struct {
	VisionProvider Provider `validate:"required,oneof=openai gemini vertex"`
	TextProvider   Provider `validate:"required,oneof=openai gemini vertex"`
	VisionModel    string   `validate:"required"`
	TextModel      string   `validate:"required"`

	OpenAIAPIKey   string
	OpenAIBaseURL  string `validate:"omitempty,url"`
	GeminiAPIKey   string
	ProjectID      string
	VertexAIRegion string

	Strategy    extract.Strategy `validate:"required,oneof=pages embedded composite"`
	RenderDPI   float64          `validate:"gt=0,lte=600"`
	BatchImages bool

	VisionMaxTokens          int `validate:"min=1"`
	CodeMaxTokens            int `validate:"min=0"`
	ContinuationTokenCeiling int `validate:"min=1"`
	MaxContinuations         int `validate:"min=0,max=50"`
	MaxCodeLines             int `validate:"min=1"`
	RequestTimeout           time.Duration

	Temperature *float32
	TopP        *float32
	TopK        *int32

	FailurePolicy models.FailurePolicy `validate:"required,oneof=abort skip"`

	// Optional integrations. Each is disabled when its key setting is empty.
	ArtifactsBucket     string
	FirestoreCollection string `validate:"required_with=ProjectID"`
	WorkflowID          string
	WorkflowLocation    string `validate:"required_with=WorkflowID"`
}

// DefaultConfig returns the configuration used when no environment is set.
func DefaultConfig() Config {
	return Config{
		VisionProvider:           ProviderOpenAI,
		TextProvider:             ProviderGemini,
		VisionModel:              "gpt-4o",
		TextModel:                "gemini-2.0-flash",
		VertexAIRegion:           "us-central1",
		Strategy:                 extract.StrategyPages,
		RenderDPI:                extract.DefaultDPI,
		VisionMaxTokens:          1000,
		CodeMaxTokens:            8192,
		ContinuationTokenCeiling: 8000,
		MaxContinuations:         5,
		MaxCodeLines:             600,
		RequestTimeout:           120 * time.Second,
		FailurePolicy:            models.FailureAbort,
		FirestoreCollection:      "storyRuns",
		WorkflowLocation:         "us-central1",
	}
}

// LoadConfig reads the configuration from the environment and validates it.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	cfg.VisionProvider = Provider(strings.ToLower(gcp.GetEnv("VISION_PROVIDER", string(cfg.VisionProvider))))
	cfg.TextProvider = Provider(strings.ToLower(gcp.GetEnv("TEXT_PROVIDER", string(cfg.TextProvider))))
	cfg.VisionModel = gcp.GetEnv("VISION_MODEL", cfg.VisionModel)
	cfg.TextModel = gcp.GetEnv("TEXT_MODEL", cfg.TextModel)

	cfg.OpenAIAPIKey = gcp.GetEnv("OPENAI_API_KEY", "")
	cfg.OpenAIBaseURL = gcp.GetEnv("OPENAI_BASE_URL", "")
	cfg.GeminiAPIKey = gcp.GetEnv("GEMINI_API_KEY", "")
	cfg.ProjectID = gcp.GetEnv("PROJECT_ID", "")
	cfg.VertexAIRegion = gcp.GetEnv("VERTEX_AI_REGION", cfg.VertexAIRegion)

	cfg.Strategy = extract.Strategy(strings.ToLower(gcp.GetEnv("EXTRACTION_STRATEGY", string(cfg.Strategy))))
	cfg.RenderDPI = getEnvFloat("RENDER_DPI", cfg.RenderDPI)
	cfg.BatchImages = gcp.GetEnvBool("BATCH_IMAGES", cfg.BatchImages)

	cfg.VisionMaxTokens = gcp.GetEnvInt("VISION_MAX_TOKENS", cfg.VisionMaxTokens)
	cfg.CodeMaxTokens = gcp.GetEnvInt("CODE_MAX_TOKENS", cfg.CodeMaxTokens)
	cfg.ContinuationTokenCeiling = gcp.GetEnvInt("CONTINUATION_TOKEN_CEILING", cfg.ContinuationTokenCeiling)
	cfg.MaxContinuations = gcp.GetEnvInt("MAX_CONTINUATIONS", cfg.MaxContinuations)
	cfg.MaxCodeLines = gcp.GetEnvInt("MAX_CODE_LINES", cfg.MaxCodeLines)
	cfg.RequestTimeout = time.Duration(gcp.GetEnvInt("REQUEST_TIMEOUT_SECONDS", int(cfg.RequestTimeout/time.Second))) * time.Second

	if v, ok := getEnvFloatPtr("TEMPERATURE"); ok {
		cfg.Temperature = v
	}
	if v, ok := getEnvFloatPtr("TOP_P"); ok {
		cfg.TopP = v
	}
	if raw := strings.TrimSpace(gcp.GetEnv("TOP_K", "")); raw != "" {
		if k, err := strconv.Atoi(raw); err == nil {
			cfg.TopK = llm.Ptr(int32(k))
		} else {
			slog.Warn("Ignoring malformed integer environment variable.", "key", "TOP_K", "value", raw)
		}
	}

	cfg.FailurePolicy = models.FailurePolicy(strings.ToLower(gcp.GetEnv("FAILURE_POLICY", string(cfg.FailurePolicy))))

	cfg.ArtifactsBucket = gcp.GetEnv("ARTIFACTS_BUCKET", "")
	cfg.FirestoreCollection = gcp.GetEnv("FIRESTORE_COLLECTION", cfg.FirestoreCollection)
	cfg.WorkflowID = gcp.GetEnv("WORKFLOW_ID", "")
	cfg.WorkflowLocation = gcp.GetEnv("WORKFLOW_LOCATION", cfg.WorkflowLocation)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and the credentials each provider needs.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, p := range []Provider{c.VisionProvider, c.TextProvider} {
		switch p {
		case ProviderOpenAI:
			if c.OpenAIAPIKey == "" {
				return fmt.Errorf("invalid configuration: OPENAI_API_KEY is required for provider %q", p)
			}
		case ProviderGemini:
			if c.GeminiAPIKey == "" {
				return fmt.Errorf("invalid configuration: GEMINI_API_KEY is required for provider %q", p)
			}
		case ProviderVertex:
			if c.ProjectID == "" || c.VertexAIRegion == "" {
				return fmt.Errorf("invalid configuration: PROJECT_ID and VERTEX_AI_REGION are required for provider %q", p)
			}
		}
	}
	if c.WorkflowID != "" && c.ProjectID == "" {
		return fmt.Errorf("invalid configuration: PROJECT_ID is required when WORKFLOW_ID is set")
	}
	return nil
}

// Sampling returns the sampling parameters for schema and code calls.
func (c *Config) Sampling() llm.Sampling {
	return llm.Sampling{
		Temperature:     c.Temperature,
		TopP:            c.TopP,
		TopK:            c.TopK,
		MaxOutputTokens: int32(c.CodeMaxTokens),
	}
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(gcp.GetEnv(key, ""))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("Ignoring malformed float environment variable.", "key", key, "value", raw)
		return fallback
	}
	return v
}

func getEnvFloatPtr(key string) (*float32, bool) {
	raw := strings.TrimSpace(gcp.GetEnv(key, ""))
	if raw == "" {
		return nil, false
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		slog.Warn("Ignoring malformed float environment variable.", "key", key, "value", raw)
		return nil, false
	}
	return llm.Ptr(float32(v)), true
}
