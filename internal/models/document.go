package models

import "time"

// Run statuses recorded on the run document as the pipeline advances.
const (
	StatusExtracting = "EXTRACTING"
	StatusAnalyzing  = "ANALYZING"
	StatusSchema     = "SCHEMA"
	StatusCodegen    = "CODEGEN"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// RunRecord represents the main record for a story generation run in Firestore.
// It tracks the overall status and metadata of the uploaded file.
type RunRecord struct {
	RunID               string    `firestore:"runId,omitempty"`
	FileHash            string    `firestore:"fileHash,omitempty"`
	Fingerprint         string    `firestore:"fingerprint,omitempty"`
	OriginalFilename    string    `firestore:"originalFilename,omitempty"`
	Status              string    `firestore:"status,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	PageCount           int       `firestore:"pageCount,omitempty"`
	StoryCount          int       `firestore:"storyCount,omitempty"`
	ArtifactsPrefix     string    `firestore:"artifactsPrefix,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"`
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
}
