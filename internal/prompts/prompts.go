// Package prompts holds the instruction templates sent to the vision and
// text models.
package prompts

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Lllllllleong/userstoryflow/internal/models"
)

// StoryExtraction is sent with every image or image batch.
const StoryExtraction = `You will be provided with one or more images of an application screen, mockup or manual page.

Follow these instructions to extract user stories:

1. Identify every field, input, button, label, menu entry and piece of text visible in the image(s).
2. Extract as many user stories as possible. Write each story in exactly this shape:
   As a [role], I want [feature] so that [benefit].
3. Follow each story with a Gherkin block using Feature:, Scenario:, Given, When and Then.
4. List every visible field explicitly by name. Do not write "etc." and do not abbreviate or summarize lists of fields.

Return only the user stories and their Gherkin blocks.`

// ContinueCode asks for the rest of a truncated code response.
const ContinueCode = `Your previous answer was cut off because it exceeded the output limit.
Continue the code exactly where it stopped. Do not repeat any code that was already written, do not restart the file and do not add explanations. Output only the remaining code.`

const schemaTemplate = `You are designing the data schema for an application described by user stories.

New user story to incorporate:
{{.Story}}

All user stories processed so far:
{{.StoriesSoFar}}

{{if .PreviousSchema}}Current schema (extend and correct it, keep everything that is still valid):
{{.PreviousSchema}}
{{else}}There is no schema yet. Create the first version.
{{end}}
Rules:
- Normalize toward third normal form.
- Do not over-fragment: prefer a direct foreign key for simple one-to-many relationships instead of a junction table, and merge narrowly related tables when normalization would force excessive joins.
- For every table list its columns with types, the primary key and any foreign keys.
- Add prepopulation rows under a "seed" key where the stories imply fixed reference data.

Output only the schema as YAML. No prose, no explanations.`

const boilerplateTemplate = `Write the boilerplate code for an application that implements the following user stories.

User stories:
{{.Stories}}

Programming language: {{.Language}}
Framework: {{.Framework}}
Database: {{.Database}}
{{if .UsesORM}}ORM: {{.ORM}}
Data schema (YAML):
{{.Schema}}
{{else}}Do not use an ORM. Persist records as a dictionary / JSON document.
{{end}}{{if .Instructions}}
Additional instructions:
{{.Instructions}}
{{end}}
Output only code.`

const refineTemplate = `Extend the existing code so that it fully implements the user story below.

User story:
{{.Story}}

All user stories processed so far:
{{.StoriesSoFar}}

Code to build upon:
{{.Code}}

Programming language: {{.Language}}
Framework: {{.Framework}}
Database: {{.Database}}
ORM: {{.ORM}}
Data schema (YAML):
{{.Schema}}
{{if .Instructions}}
Additional instructions:
{{.Instructions}}
{{end}}
Requirements:
- Replace every placeholder and every "simulate this yourself" comment with real logic.
- {{if .UsesORM}}Replace in-memory storage with persistence through {{.ORM}} against {{.Database}}.{{else}}Replace in-memory storage with raw SQL against {{.Database}}, or a JSON document store when no database is selected.{{end}}
- Add a permissive cross-origin (CORS) policy.
- Every POST endpoint must have a matching GET endpoint that reads back what it writes.
- Keep the whole file under {{.MaxLines}} lines.
- Do not duplicate logic; move shared behaviour into functions.

Output the complete updated code only.`

var (
	schemaTmpl      = template.Must(template.New("schema").Parse(schemaTemplate))
	boilerplateTmpl = template.Must(template.New("boilerplate").Parse(boilerplateTemplate))
	refineTmpl      = template.Must(template.New("refine").Parse(refineTemplate))
)

// SchemaInput fills the schema fold prompt.
type SchemaInput struct {
	Story          string
	StoriesSoFar   string
	PreviousSchema string
}

// CodeInput fills the boilerplate and refinement prompts.
type CodeInput struct {
	Story        string
	Stories      string
	StoriesSoFar string
	Code         string
	Schema       string
	Context      models.GenerationContext
	MaxLines     int
}

type codeView struct {
	CodeInput
	Language     string
	Framework    string
	Database     string
	ORM          string
	UsesORM      bool
	Instructions string
}

func (in CodeInput) view() codeView {
	return codeView{
		CodeInput:    in,
		Language:     in.Context.Language.DisplayName(),
		Framework:    in.Context.Framework,
		Database:     in.Context.Database.DisplayName(),
		ORM:          in.Context.ORM.DisplayName(),
		UsesORM:      in.Context.UsesORM(),
		Instructions: in.Context.AdditionalInstructions,
	}
}

func execute(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return b.String(), nil
}

// Schema renders the prompt for one schema fold step.
func Schema(in SchemaInput) (string, error) {
	return execute(schemaTmpl, in)
}

// Boilerplate renders the prompt for the first code generation call.
func Boilerplate(in CodeInput) (string, error) {
	return execute(boilerplateTmpl, in.view())
}

// Refine renders the prompt for one code fold step.
func Refine(in CodeInput) (string, error) {
	return execute(refineTmpl, in.view())
}
