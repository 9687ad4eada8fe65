package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/Lllllllleong/userstoryflow/internal/extract"
	"github.com/Lllllllleong/userstoryflow/internal/llm"
	"github.com/Lllllllleong/userstoryflow/internal/models"
)

var fakePDF = []byte("%PDF-1.7\n%fake\n")

// scriptedTextModel records every request and answers with reply.
type scriptedTextModel struct {
	mu       sync.Mutex
	requests []llm.TextRequest
	reply    func(n int, req llm.TextRequest) (llm.Generation, error)
}

func (m *scriptedTextModel) Generate(ctx context.Context, req llm.TextRequest) (llm.Generation, error) {
	m.mu.Lock()
	n := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return llm.Generation{}, err
	}
	return m.reply(n, req)
}

func (m *scriptedTextModel) calls() []llm.TextRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.TextRequest(nil), m.requests...)
}

// sequence answers the n-th call with gens[n].
func sequence(gens ...llm.Generation) func(int, llm.TextRequest) (llm.Generation, error) {
	return func(n int, _ llm.TextRequest) (llm.Generation, error) {
		if n >= len(gens) {
			return llm.Generation{}, fmt.Errorf("%w: unexpected call %d", llm.ErrModelCall, n)
		}
		return gens[n], nil
	}
}

func gen(text string, tokens int) llm.Generation {
	return llm.Generation{Text: text, OutputTokens: tokens}
}

type visionCall struct {
	prompt    string
	images    int
	maxTokens int32
}

type scriptedVisionModel struct {
	mu    sync.Mutex
	calls []visionCall
	reply func(n int, req llm.VisionRequest) (llm.Generation, error)
}

func (m *scriptedVisionModel) Describe(ctx context.Context, req llm.VisionRequest) (llm.Generation, error) {
	m.mu.Lock()
	n := len(m.calls)
	m.calls = append(m.calls, visionCall{prompt: req.Prompt, images: len(req.Images), maxTokens: req.MaxOutputTokens})
	m.mu.Unlock()
	return m.reply(n, req)
}

// deterministicTextModel derives every answer from the prompt alone.
func deterministicTextModel() *scriptedTextModel {
	return &scriptedTextModel{reply: func(_ int, req llm.TextRequest) (llm.Generation, error) {
		sum := sha256.Sum256([]byte(req.Prompt))
		switch {
		case strings.HasPrefix(req.Prompt, "You are designing the data schema"):
			return gen("tables:\n  t_"+hex.EncodeToString(sum[:4])+":\n    id: integer", 40), nil
		default:
			return gen("# build "+hex.EncodeToString(sum[:8])+"\n"+fieldLines(req.Prompt), 80), nil
		}
	}}
}

// fieldLines returns every "Fields:" line found in text, deduplicated.
func fieldLines(text string) string {
	seen := map[string]bool{}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "Fields:") && !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

type fakeRenderer struct {
	images []image.Image
}

func (r *fakeRenderer) Render(ctx context.Context, pdf []byte) ([]image.Image, error) {
	return r.images, nil
}

type fakeInspector struct {
	pages int
}

func (i *fakeInspector) PageCount(pdf []byte) (int, error) { return i.pages, nil }

func (i *fakeInspector) EmbeddedImages(ctx context.Context, pdf []byte) ([]extract.EmbeddedImage, error) {
	return nil, nil
}

func blankPage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func rasterPages(n int) []extract.Page {
	pages := make([]extract.Page, n)
	for i := range pages {
		pages[i] = extract.Page{Number: i + 1, Width: 4, Height: 4, Source: extract.RasterImage{Image: blankPage(4, 4)}}
	}
	return pages
}

func storiesOf(texts ...string) *models.StorySequence {
	var s models.StorySequence
	for i, t := range texts {
		s.Append(t, i+1)
	}
	return &s
}

// recordingObserver captures events in order.
type recordingObserver struct {
	events []string
}

func (o *recordingObserver) StageStarted(_ context.Context, stage string) {
	o.events = append(o.events, "stage:"+stage)
}

func (o *recordingObserver) StoryExtracted(s models.UserStory) {
	o.events = append(o.events, fmt.Sprintf("story:%d", s.Index))
}

func (o *recordingObserver) SchemaUpdated(v models.SchemaVersion) {
	o.events = append(o.events, fmt.Sprintf("schema:%d", v.Step))
}

func (o *recordingObserver) CodeUpdated(v models.CodeVersion) {
	o.events = append(o.events, fmt.Sprintf("code:%d", v.Step))
}

type memRecorder struct {
	mu        sync.Mutex
	records   map[string]*models.RunRecord
	statuses  []string
	execution string
}

func newMemRecorder() *memRecorder {
	return &memRecorder{records: map[string]*models.RunRecord{}}
}

func (r *memRecorder) FindCompleted(_ context.Context, fingerprint string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.records {
		if rec.Fingerprint == fingerprint && rec.Status == models.StatusCompleted {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (r *memRecorder) Create(_ context.Context, record models.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.RunID] = &record
	r.statuses = append(r.statuses, record.Status)
	return nil
}

func (r *memRecorder) UpdateStatus(_ context.Context, runID, status, errDetails string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[runID]
	rec.Status = status
	rec.ErrorDetails = errDetails
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *memRecorder) Complete(_ context.Context, result *models.RunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[result.RunID]
	rec.Status = models.StatusCompleted
	rec.StoryCount = len(result.Stories)
	rec.PageCount = result.PageCount
	rec.ArtifactsPrefix = result.ArtifactsPrefix
	r.statuses = append(r.statuses, models.StatusCompleted)
	return nil
}

func (r *memRecorder) SetWorkflowExecution(_ context.Context, runID, executionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[runID].WorkflowExecutionID = executionID
	r.execution = executionID
	return nil
}

type memStore struct {
	saved []*models.RunResult
}

func (s *memStore) Save(_ context.Context, result *models.RunResult) (string, error) {
	s.saved = append(s.saved, result)
	return "gs://artifacts/" + result.RunID + "/", nil
}

type memNotifier struct {
	payloads []models.WorkflowPayload
}

func (n *memNotifier) Notify(_ context.Context, payload models.WorkflowPayload) (string, error) {
	n.payloads = append(n.payloads, payload)
	return "executions/" + payload.RunID, nil
}
