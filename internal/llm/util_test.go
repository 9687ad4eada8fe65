package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no fence is untouched", in: "  tables:\n  - users  \n", want: "  tables:\n  - users  \n"},
		{name: "yaml fence", in: "```yaml\ntables:\n  users: {}\n```", want: "tables:\n  users: {}"},
		{name: "bare fence", in: "```\nprint(1)\n```\n", want: "print(1)"},
		{name: "unterminated fence", in: "```python\nprint(1)", want: "print(1)"},
		{name: "single line fence", in: "```x```", want: "x"},
		{name: "interior whitespace kept", in: "```go\nfunc a() {}\n\n\tb()  \n```", want: "func a() {}\n\n\tb()  "},
		{name: "trailing spaces after fence", in: "```\nx := 1\n```  \n", want: "x := 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestCheckRefusal(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		refusal bool
	}{
		{name: "story", text: "Feature: Login"},
		{name: "phrase inside a scenario", text: "Scenario: Locked account\n  Given my account is locked\n  Then I am unable to access the dashboard"},
		{name: "story opening with a phrase", text: "I am unable to log in without a password.\nAs a user, I want to reset it so that I can sign in."},
		{name: "schema mentioning a phrase", text: "tables:\n  notes:\n    reason: \"i cannot provide\""},
		{name: "model refusal", text: "As a large language model, I cannot do that.", refusal: true},
		{name: "apology", text: "  I'm sorry, but I can't read this image.", refusal: true},
		{name: "schema refusal", text: "I cannot provide a schema for this.", refusal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRefusal(tt.text)
			if tt.refusal {
				assert.True(t, errors.Is(err, ErrModelCall))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCallError_Is(t *testing.T) {
	err := callError("openai", "describe", errors.New("boom"))
	assert.True(t, errors.Is(err, ErrModelCall))
	assert.Equal(t, "openai describe: boom", err.Error())
}

func TestInlineImage(t *testing.T) {
	img := InlineImage{MIMEType: "image/png", Data: []byte("abc")}
	assert.Equal(t, "data:image/png;base64,YWJj", img.DataURI())
	assert.Equal(t, "png", img.Format())
}
