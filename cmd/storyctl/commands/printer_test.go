package commands

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Lllllllleong/userstoryflow/internal/models"
	"github.com/Lllllllleong/userstoryflow/internal/services"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrinter_RendersProgress(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	p := newPrinter(&buf, false)

	p.StageStarted(context.Background(), services.StageAnalyzing)
	p.StoryExtracted(models.UserStory{Index: 0, Pages: []int{1, 2}, Text: "Feature: Login\nScenario: ok"})
	p.SchemaUpdated(models.SchemaVersion{Step: 1, Tables: []string{"users", "sessions"}, Text: "users: {}"})
	p.CodeUpdated(models.CodeVersion{Step: 1, StoryIndex: models.BoilerplateStoryIndex, Text: "a\nb"})
	p.CodeUpdated(models.CodeVersion{Step: 2, StoryIndex: 0, Text: "a", Continuations: 2})

	out := buf.String()
	assert.Contains(t, out, "==> Extracting user stories")
	assert.Contains(t, out, "Story 1 (pages 1,2)")
	assert.Contains(t, out, "    Feature: Login\n    Scenario: ok")
	assert.Contains(t, out, "Schema v1 tables: users, sessions")
	assert.NotContains(t, out, "users: {}")
	assert.Contains(t, out, "Code v1 (boilerplate, 2 lines)")
	assert.Contains(t, out, "Code v2 (story 1, 1 lines, 2 continuations)")
}

func TestPrinter_SummaryAndFailures(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	p := newPrinter(&buf, true)

	var schema models.SchemaHistory
	schema.Add(0, "users:\n  id: int", nil)
	var code models.CodeHistory
	code.Add(models.BoilerplateStoryIndex, "app = Flask(__name__)", 0)
	start := time.Now()
	p.summary(&models.RunResult{
		RunID:      "run-9",
		Stories:    []models.UserStory{{Text: "x"}},
		Schema:     schema,
		Code:       code,
		Failures:   []models.StepFailure{{Stage: services.StageAnalyzing, StoryIndex: 1, Page: 2, Error: "timeout"}},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	})
	out := buf.String()
	assert.Contains(t, out, "users:\n  id: int")
	assert.Contains(t, out, "app = Flask(__name__)")
	assert.Contains(t, out, "skipped analyzing step (story 2, page 2): timeout")
	assert.Contains(t, out, "run run-9: 1 stories, 1 schema versions, 1 code versions in 1.5s")

	buf.Reset()
	p.failure(fmt.Errorf("boom"))
	assert.Contains(t, buf.String(), "Pipeline failed: boom")
}
