package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiGeneration(t *testing.T) {
	candidate := func(reason genai.FinishReason, parts ...genai.Part) []*genai.Candidate {
		return []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}, FinishReason: reason}}
	}
	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		want    Generation
		wantErr bool
	}{
		{
			name: "usage reported",
			resp: &genai.GenerateContentResponse{
				Candidates:    candidate(genai.FinishReasonStop, genai.Text("def a():\n    pass\n")),
				UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 300, CandidatesTokenCount: 9000},
			},
			want: Generation{Text: "def a():\n    pass\n", OutputTokens: 9000},
		},
		{
			name: "usage missing",
			resp: &genai.GenerateContentResponse{Candidates: candidate(genai.FinishReasonStop, genai.Text("tables: {}"))},
			want: Generation{Text: "tables: {}"},
		},
		{
			name: "max tokens finish",
			resp: &genai.GenerateContentResponse{
				Candidates:    candidate(genai.FinishReasonMaxTokens, genai.Text("def a(")),
				UsageMetadata: &genai.UsageMetadata{CandidatesTokenCount: 8192},
			},
			want: Generation{Text: "def a(", OutputTokens: 8192, Truncated: true},
		},
		{
			name: "text parts are joined and blobs ignored",
			resp: &genai.GenerateContentResponse{Candidates: candidate(genai.FinishReasonStop,
				genai.Text("Feature: A\n"), genai.Blob{MIMEType: "image/png", Data: []byte{1}}, genai.Text("Scenario: B"))},
			want: Generation{Text: "Feature: A\nScenario: B"},
		},
		{name: "nil response", resp: nil, wantErr: true},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, wantErr: true},
		{name: "no parts", resp: &genai.GenerateContentResponse{Candidates: candidate(genai.FinishReasonSafety)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := geminiGeneration(tt.resp)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
