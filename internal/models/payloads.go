package models

// These structs define the JSON payloads exchanged with the HTTP function
// and the downstream workflow.

// Upload is the raw document handed to one pipeline run. Data must not be
// modified after the run starts.
type Upload struct {
	Filename string
	Data     []byte
}

// PipelineRequest is the input for one pipeline run.
type PipelineRequest struct {
	Upload  Upload
	Context GenerationContext
	// SkipIfCompleted returns a duplicate instead of running again when a
	// completed run with the same document and context is on record.
	SkipIfCompleted bool
}

// PipelineResponse is the output of the story-pipeline function.
type PipelineResponse struct {
	Status          string        `json:"status"`
	RunID           string        `json:"runId"`
	Stories         []string      `json:"stories"`
	Schema          string        `json:"schema"`
	Code            string        `json:"code"`
	Failures        []StepFailure `json:"failures,omitempty"`
	ArtifactsPrefix string        `json:"artifactsPrefix,omitempty"`
}

// WorkflowPayload is the argument passed to the downstream workflow execution.
type WorkflowPayload struct {
	RunID           string `json:"runId"`
	ArtifactsPrefix string `json:"artifactsPrefix"`
	StoryCount      int    `json:"storyCount"`
}

// GCSEvent is the data of a Cloud Storage object finalize event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}
