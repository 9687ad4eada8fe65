package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/userstoryflow/internal/extract"
	"github.com/Lllllllleong/userstoryflow/internal/models"
	"github.com/Lllllllleong/userstoryflow/internal/services"
)

// maxUploadBytes bounds the multipart body.
const maxUploadBytes = 32 << 20

var (
	pipelineInstance *services.Pipeline
	once             sync.Once
	initErr          error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleGenerateStories" is the entry point name we'll see in GCP.
	functions.HTTP("HandleGenerateStories", handleGenerateStories)
}

// main is required by the Go Functions Framework.
func main() {}

func initPipeline() (*services.Pipeline, error) {
	cfg, err := services.LoadConfig()
	if err != nil {
		return nil, err
	}
	return services.NewPipelineFromConfig(context.Background(), cfg)
}

// handleGenerateStories accepts a multipart upload with the document in the
// "file" part and the generation settings as form fields.
func handleGenerateStories(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		pipelineInstance, initErr = initPipeline()
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	serve(w, r, pipelineInstance.Run)
}

type runFunc func(ctx context.Context, req models.PipelineRequest, obs services.Observer) (*models.RunResult, error)

func serve(w http.ResponseWriter, r *http.Request, run runFunc) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := parseRequest(w, r)
	if err != nil {
		slog.Warn("Rejected request.", "error", err)
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := run(r.Context(), req, nil)
	switch {
	case errors.Is(err, extract.ErrExtraction):
		http.Error(w, "Unprocessable Entity: "+err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		// The specific error is already logged inside the pipeline.
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result.Response())
}

func parseRequest(w http.ResponseWriter, r *http.Request) (models.PipelineRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return models.PipelineRequest{}, fmt.Errorf("could not parse multipart form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return models.PipelineRequest{}, fmt.Errorf("missing file part: %w", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return models.PipelineRequest{}, fmt.Errorf("could not read upload: %w", err)
	}

	genCtx, err := models.NewGenerationContext(
		r.FormValue("language"),
		r.FormValue("framework"),
		r.FormValue("database"),
		r.FormValue("orm"),
		r.FormValue("instructions"),
	)
	if err != nil {
		return models.PipelineRequest{}, err
	}
	return models.PipelineRequest{
		Upload:  models.Upload{Filename: header.Filename, Data: data},
		Context: genCtx,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
