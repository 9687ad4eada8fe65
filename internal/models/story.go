package models

import (
	"strings"
	"time"
)

// storySeparator joins stories when the running concatenation is rendered
// into a prompt.
const storySeparator = "\n\n"

// UserStory is the Gherkin text extracted from one image or one image batch.
type UserStory struct {
	Index int    `json:"index"`
	Pages []int  `json:"pages"`
	Text  string `json:"text"`
}

// StorySequence is the ordered, append-only collection of stories for one run.
type StorySequence struct {
	stories []UserStory
}

// Append adds a story at the end of the sequence and assigns its index.
func (s *StorySequence) Append(text string, pages ...int) UserStory {
	story := UserStory{
		Index: len(s.stories),
		Pages: append([]int(nil), pages...),
		Text:  text,
	}
	s.stories = append(s.stories, story)
	return story
}

// Len returns the number of stories.
func (s *StorySequence) Len() int { return len(s.stories) }

// At returns the story at position i.
func (s *StorySequence) At(i int) UserStory { return s.stories[i] }

// All returns a copy of the stories in processing order.
func (s *StorySequence) All() []UserStory {
	return append([]UserStory(nil), s.stories...)
}

// Texts returns the story texts in processing order.
func (s *StorySequence) Texts() []string {
	texts := make([]string, len(s.stories))
	for i, story := range s.stories {
		texts[i] = story.Text
	}
	return texts
}

// Concat returns the concatenation of stories [0, upTo] inclusive. A negative
// upTo yields an empty string; an upTo past the end includes every story.
func (s *StorySequence) Concat(upTo int) string {
	if upTo < 0 || len(s.stories) == 0 {
		return ""
	}
	if upTo >= len(s.stories) {
		upTo = len(s.stories) - 1
	}
	var b strings.Builder
	for i := 0; i <= upTo; i++ {
		if i > 0 {
			b.WriteString(storySeparator)
		}
		b.WriteString(s.stories[i].Text)
	}
	return b.String()
}

// SchemaVersion is one result of the schema fold. StoryIndex is the story
// folded in to produce it.
type SchemaVersion struct {
	Step       int       `json:"step"`
	StoryIndex int       `json:"storyIndex"`
	Text       string    `json:"text"`
	Tables     []string  `json:"tables,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SchemaHistory holds every schema version in fold order.
type SchemaHistory struct {
	Versions []SchemaVersion `json:"versions"`
}

// Current returns the latest schema text, or "" before the first step.
func (h *SchemaHistory) Current() string {
	if len(h.Versions) == 0 {
		return ""
	}
	return h.Versions[len(h.Versions)-1].Text
}

// Add records a new version and returns it.
func (h *SchemaHistory) Add(storyIndex int, text string, tables []string) SchemaVersion {
	v := SchemaVersion{
		Step:       len(h.Versions) + 1,
		StoryIndex: storyIndex,
		Text:       text,
		Tables:     tables,
		CreatedAt:  time.Now(),
	}
	h.Versions = append(h.Versions, v)
	return v
}

// BoilerplateStoryIndex marks the code version produced from the whole story
// set rather than a single story.
const BoilerplateStoryIndex = -1

// CodeVersion is one result of the code generation fold.
type CodeVersion struct {
	Step          int       `json:"step"`
	StoryIndex    int       `json:"storyIndex"`
	Text          string    `json:"text"`
	Continuations int       `json:"continuations"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CodeHistory holds every code version in fold order.
type CodeHistory struct {
	Versions []CodeVersion `json:"versions"`
}

// Current returns the latest code text, or "" before the boilerplate step.
func (h *CodeHistory) Current() string {
	if len(h.Versions) == 0 {
		return ""
	}
	return h.Versions[len(h.Versions)-1].Text
}

// Add records a new version and returns it.
func (h *CodeHistory) Add(storyIndex int, text string, continuations int) CodeVersion {
	v := CodeVersion{
		Step:          len(h.Versions) + 1,
		StoryIndex:    storyIndex,
		Text:          text,
		Continuations: continuations,
		CreatedAt:     time.Now(),
	}
	h.Versions = append(h.Versions, v)
	return v
}

// StepFailure records a skipped step when the failure policy is skip.
type StepFailure struct {
	Stage      string `json:"stage"`
	StoryIndex int    `json:"storyIndex"`
	Page       int    `json:"page,omitempty"`
	Error      string `json:"error"`
}

// RunResult is everything one pipeline run produced.
type RunResult struct {
	RunID       string            `json:"runId"`
	Filename    string            `json:"filename"`
	FileHash    string            `json:"fileHash"`
	Fingerprint string            `json:"fingerprint"`
	Context     GenerationContext `json:"context"`
	PageCount   int               `json:"pageCount"`
	Stories     []UserStory       `json:"stories"`
	Schema      SchemaHistory     `json:"schema"`
	Code        CodeHistory       `json:"code"`
	Failures    []StepFailure     `json:"failures,omitempty"`
	// ArtifactsPrefix is set once the artifacts have been persisted.
	ArtifactsPrefix string    `json:"artifactsPrefix,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
}

// Response converts the result into the function's JSON response.
func (r *RunResult) Response() *PipelineResponse {
	texts := make([]string, len(r.Stories))
	for i, s := range r.Stories {
		texts[i] = s.Text
	}
	return &PipelineResponse{
		Status:          "success",
		RunID:           r.RunID,
		Stories:         texts,
		Schema:          r.Schema.Current(),
		Code:            r.Code.Current(),
		Failures:        r.Failures,
		ArtifactsPrefix: r.ArtifactsPrefix,
	}
}
