package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Lllllllleong/userstoryflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flaskMetadata = map[string]string{
	MetadataLanguage:  "Python",
	MetadataFramework: "Flask",
	MetadataDatabase:  "JSON (no database)",
}

func staticReader(data []byte, metadata map[string]string, reads *int) ObjectReader {
	return func(context.Context, string, string) ([]byte, map[string]string, error) {
		*reads++
		return data, metadata, nil
	}
}

func TestUploadTrigger_RunsPipelineOnceForDuplicates(t *testing.T) {
	recorder := newMemRecorder()
	f := newPipelineFixture(t, 2, deterministicTextModel(), PipelineOptions{Recorder: recorder})
	reads := 0
	trigger, err := NewUploadTrigger(f.pipeline, staticReader(fakePDF, flaskMetadata, &reads), "artifacts")
	require.NoError(t, err)

	event := models.GCSEvent{Bucket: "uploads", Name: "specs/screens.pdf"}
	require.NoError(t, trigger.Process(context.Background(), event))
	calls := len(f.text.calls())
	assert.Equal(t, 5, calls)

	require.NoError(t, trigger.Process(context.Background(), event))
	assert.Len(t, f.text.calls(), calls)
	assert.Equal(t, 2, reads)
	assert.Len(t, recorder.records, 1)
}

func TestUploadTrigger_SkipsWithoutRunning(t *testing.T) {
	tests := []struct {
		name     string
		event    models.GCSEvent
		metadata map[string]string
		reads    int
	}{
		{name: "artifacts bucket", event: models.GCSEvent{Bucket: "artifacts", Name: "run/result.json"}, metadata: flaskMetadata},
		{name: "unsupported type", event: models.GCSEvent{Bucket: "uploads", Name: "notes.docx"}, metadata: flaskMetadata},
		{name: "missing framework", event: models.GCSEvent{Bucket: "uploads", Name: "a.png"}, metadata: map[string]string{MetadataLanguage: "go"}, reads: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture(t, 1, deterministicTextModel(), PipelineOptions{})
			reads := 0
			trigger, err := NewUploadTrigger(f.pipeline, staticReader(fakePDF, tt.metadata, &reads), "artifacts")
			require.NoError(t, err)

			assert.NoError(t, trigger.Process(context.Background(), tt.event))
			assert.Equal(t, tt.reads, reads)
			assert.Empty(t, f.vision.calls)
		})
	}
}

func TestUploadTrigger_PropagatesReadErrors(t *testing.T) {
	f := newPipelineFixture(t, 1, deterministicTextModel(), PipelineOptions{})
	boom := errors.New("permission denied")
	trigger, err := NewUploadTrigger(f.pipeline, func(context.Context, string, string) ([]byte, map[string]string, error) {
		return nil, nil, boom
	}, "")
	require.NoError(t, err)

	err = trigger.Process(context.Background(), models.GCSEvent{Bucket: "uploads", Name: "a.pdf"})
	assert.ErrorIs(t, err, boom)
}

func TestContextFromMetadata(t *testing.T) {
	genCtx, err := ContextFromMetadata(map[string]string{
		MetadataLanguage:     "C#",
		MetadataFramework:    "ASP.NET Core",
		MetadataDatabase:     "Microsoft SQL Server",
		MetadataORM:          "",
		MetadataInstructions: "use minimal APIs",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LanguageCSharp, genCtx.Language)
	assert.Equal(t, models.DatabaseSQLServer, genCtx.Database)
	assert.Equal(t, models.ORMNone, genCtx.ORM)
	assert.Equal(t, "use minimal APIs", genCtx.AdditionalInstructions)
}
