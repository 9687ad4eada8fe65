package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Lllllllleong/userstoryflow/internal/models"
	"github.com/Lllllllleong/userstoryflow/internal/services"
	"github.com/fatih/color"
)

var (
	stageColor   = color.New(color.FgCyan, color.Bold)
	storyColor   = color.New(color.FgGreen)
	versionColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.Faint)
)

var stageTitles = map[string]string{
	services.StageExtracting: "Extracting page images",
	services.StageAnalyzing:  "Extracting user stories",
	services.StageSchema:     "Synthesizing schema",
	services.StageCodegen:    "Generating code",
}

// printer renders pipeline progress on the terminal.
type printer struct {
	w       io.Writer
	verbose bool
}

func newPrinter(w io.Writer, verbose bool) *printer {
	return &printer{w: w, verbose: verbose}
}

func (p *printer) StageStarted(_ context.Context, stage string) {
	title, ok := stageTitles[stage]
	if !ok {
		title = stage
	}
	stageColor.Fprintf(p.w, "\n==> %s\n", title)
}

func (p *printer) StoryExtracted(s models.UserStory) {
	storyColor.Fprintf(p.w, "Story %d (pages %s)\n", s.Index+1, joinInts(s.Pages))
	fmt.Fprintln(p.w, indent(s.Text))
}

func (p *printer) SchemaUpdated(v models.SchemaVersion) {
	versionColor.Fprintf(p.w, "Schema v%d", v.Step)
	if len(v.Tables) > 0 {
		fmt.Fprintf(p.w, " tables: %s", strings.Join(v.Tables, ", "))
	}
	fmt.Fprintln(p.w)
	if p.verbose {
		fmt.Fprintln(p.w, indent(v.Text))
	}
}

func (p *printer) CodeUpdated(v models.CodeVersion) {
	label := fmt.Sprintf("story %d", v.StoryIndex+1)
	if v.StoryIndex == models.BoilerplateStoryIndex {
		label = "boilerplate"
	}
	versionColor.Fprintf(p.w, "Code v%d", v.Step)
	fmt.Fprintf(p.w, " (%s, %d lines", label, strings.Count(v.Text, "\n")+1)
	if v.Continuations > 0 {
		fmt.Fprintf(p.w, ", %d continuations", v.Continuations)
	}
	fmt.Fprintln(p.w, ")")
}

func (p *printer) summary(r *models.RunResult) {
	stageColor.Fprintln(p.w, "\n==> Schema")
	fmt.Fprintln(p.w, r.Schema.Current())
	stageColor.Fprintln(p.w, "\n==> Code")
	fmt.Fprintln(p.w, r.Code.Current())

	for _, f := range r.Failures {
		errorColor.Fprintf(p.w, "skipped %s step (story %d, page %d): %s\n", f.Stage, f.StoryIndex+1, f.Page, f.Error)
	}
	dimColor.Fprintf(p.w, "\nrun %s: %d stories, %d schema versions, %d code versions in %s\n",
		r.RunID, len(r.Stories), len(r.Schema.Versions), len(r.Code.Versions),
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}

func (p *printer) failure(err error) {
	errorColor.Fprintf(p.w, "Pipeline failed: %v\n", err)
}

func (p *printer) info(format string, args ...any) {
	dimColor.Fprintf(p.w, format+"\n", args...)
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}

func indent(text string) string {
	return "    " + strings.ReplaceAll(strings.TrimRight(text, "\n"), "\n", "\n    ")
}

var _ services.Observer = (*printer)(nil)
