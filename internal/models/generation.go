package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Language is the target programming language for generated code.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageJava       Language = "java"
	LanguageCSharp     Language = "csharp"
	LanguageGo         Language = "go"
	LanguageTypeScript Language = "typescript"
)

// Database is the target persistence engine.
type Database string

const (
	DatabasePostgreSQL Database = "postgresql"
	DatabaseMySQL      Database = "mysql"
	DatabaseSQLite     Database = "sqlite"
	DatabaseSQLServer  Database = "mssql"
	DatabaseJSON       Database = "json"
)

// ORM is the object-relational mapper used by generated code.
type ORM string

const (
	ORMSQLAlchemy ORM = "sqlalchemy"
	ORMSequelize  ORM = "sequelize"
	ORMPrisma     ORM = "prisma"
	ORMNone       ORM = "none"
)

// FailurePolicy decides what a fold does when one model call fails.
type FailurePolicy string

const (
	// FailureAbort stops the run at the first failed step.
	FailureAbort FailurePolicy = "abort"
	// FailureSkip records the failure and continues from the last good version.
	FailureSkip FailurePolicy = "skip"
)

var languageNames = map[Language]string{
	LanguagePython:     "Python",
	LanguageJavaScript: "JavaScript",
	LanguageJava:       "Java",
	LanguageCSharp:     "C#",
	LanguageGo:         "Go",
	LanguageTypeScript: "TypeScript",
}

var databaseNames = map[Database]string{
	DatabasePostgreSQL: "PostgreSQL",
	DatabaseMySQL:      "MySQL",
	DatabaseSQLite:     "SQLite",
	DatabaseSQLServer:  "Microsoft SQL Server",
	DatabaseJSON:       "JSON (no database)",
}

var ormNames = map[ORM]string{
	ORMSQLAlchemy: "SQLAlchemy",
	ORMSequelize:  "Sequelize",
	ORMPrisma:     "Prisma",
	ORMNone:       "None (raw queries)",
}

// DisplayName returns the name used in prompts.
func (l Language) DisplayName() string { return languageNames[l] }

// DisplayName returns the name used in prompts.
func (d Database) DisplayName() string { return databaseNames[d] }

// DisplayName returns the name used in prompts.
func (o ORM) DisplayName() string { return ormNames[o] }

// ParseLanguage accepts either the code ("csharp") or the display name ("C#").
func ParseLanguage(s string) (Language, error) {
	for code, name := range languageNames {
		if matches(s, string(code), name) {
			return code, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

// ParseDatabase accepts either the code ("mssql") or the display name.
func ParseDatabase(s string) (Database, error) {
	if strings.EqualFold(strings.TrimSpace(s), "none") {
		return DatabaseJSON, nil
	}
	for code, name := range databaseNames {
		if matches(s, string(code), name) {
			return code, nil
		}
	}
	return "", fmt.Errorf("unsupported database %q", s)
}

// ParseORM accepts either the code or the display name. An empty string means none.
func ParseORM(s string) (ORM, error) {
	if strings.TrimSpace(s) == "" || strings.EqualFold(strings.TrimSpace(s), "raw") {
		return ORMNone, nil
	}
	for code, name := range ormNames {
		if matches(s, string(code), name) {
			return code, nil
		}
	}
	return "", fmt.Errorf("unsupported ORM %q", s)
}

func matches(input, code, name string) bool {
	input = strings.TrimSpace(input)
	return strings.EqualFold(input, code) || strings.EqualFold(input, name)
}

// GenerationContext is the side information threaded through every schema
// and code generation call. It is fixed for one run.
type GenerationContext struct {
	Language               Language `json:"language" validate:"required,oneof=python javascript java csharp go typescript"`
	Framework              string   `json:"framework" validate:"required,max=100"`
	Database               Database `json:"database" validate:"required,oneof=postgresql mysql sqlite mssql json"`
	ORM                    ORM      `json:"orm" validate:"required,oneof=sqlalchemy sequelize prisma none"`
	AdditionalInstructions string   `json:"additionalInstructions,omitempty" validate:"max=4000"`
}

// Validate validates the GenerationContext using the validator.
func (g *GenerationContext) Validate() error {
	validate := validator.New()
	return validate.Struct(g)
}

// UsesORM reports whether generated code should persist through an ORM.
func (g *GenerationContext) UsesORM() bool {
	return g.ORM != "" && g.ORM != ORMNone
}

// Key is a stable rendering of the context used for run fingerprints.
func (g *GenerationContext) Key() string {
	return strings.Join([]string{
		string(g.Language),
		strings.ToLower(strings.TrimSpace(g.Framework)),
		string(g.Database),
		string(g.ORM),
		strings.TrimSpace(g.AdditionalInstructions),
	}, "|")
}

// NewGenerationContext parses user-facing selections into a validated context.
func NewGenerationContext(language, framework, database, orm, instructions string) (GenerationContext, error) {
	lang, err := ParseLanguage(language)
	if err != nil {
		return GenerationContext{}, err
	}
	db, err := ParseDatabase(database)
	if err != nil {
		return GenerationContext{}, err
	}
	o, err := ParseORM(orm)
	if err != nil {
		return GenerationContext{}, err
	}
	g := GenerationContext{
		Language:               lang,
		Framework:              strings.TrimSpace(framework),
		Database:               db,
		ORM:                    o,
		AdditionalInstructions: strings.TrimSpace(instructions),
	}
	if err := g.Validate(); err != nil {
		return GenerationContext{}, fmt.Errorf("invalid generation context: %w", err)
	}
	return g, nil
}
