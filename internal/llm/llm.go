// Package llm defines the model abstractions the pipeline talks to and the
// provider clients that implement them.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrModelCall is matched by every provider failure: transport errors,
// malformed responses and provider-reported errors.
var ErrModelCall = errors.New("model call failed")

// CallError carries the provider and operation of a failed model call.
type CallError struct {
	Provider string
	Op       string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Is reports ErrModelCall so callers can classify without knowing the provider.
func (e *CallError) Is(target error) bool { return target == ErrModelCall }

func callError(provider, op string, err error) error {
	return &CallError{Provider: provider, Op: op, Err: err}
}

// InlineImage is an encoded image sent inline with a request.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

// DataURI renders the image as a base64 data URI.
func (i InlineImage) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Format returns the subtype of the MIME type, e.g. "png".
func (i InlineImage) Format() string {
	_, sub, ok := strings.Cut(i.MIMEType, "/")
	if !ok {
		return i.MIMEType
	}
	return sub
}

// Role identifies the author of a transcript turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one turn of a conversation transcript.
type Message struct {
	Role Role
	Text string
}

// Sampling holds the optional sampling parameters of a text request.
// Nil fields are left to the provider default.
type Sampling struct {
	Temperature     *float32
	TopP            *float32
	TopK            *int32
	MaxOutputTokens int32
}

// VisionRequest is one user turn of prompt text plus one or more images.
type VisionRequest struct {
	Prompt          string
	Images          []InlineImage
	MaxOutputTokens int32
}

// TextRequest is a prompt sent after an optional transcript of earlier turns.
type TextRequest struct {
	History  []Message
	Prompt   string
	Sampling Sampling
}

// Generation is a model response.
type Generation struct {
	Text string
	// OutputTokens is the provider-reported token count of the generated text.
	OutputTokens int
	// Truncated is set when the provider stopped on its output token limit.
	Truncated bool
}

// VisionModel extracts text from images.
type VisionModel interface {
	Describe(ctx context.Context, req VisionRequest) (Generation, error)
}

// TextModel generates text from a prompt and transcript.
type TextModel interface {
	Generate(ctx context.Context, req TextRequest) (Generation, error)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
