package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerationContext(t *testing.T) {
	tests := []struct {
		name         string
		language     string
		framework    string
		database     string
		orm          string
		wantLanguage Language
		wantDatabase Database
		wantORM      ORM
		wantErr      bool
	}{
		{
			name:     "display names",
			language: "C#", framework: "ASP.NET", database: "Microsoft SQL Server", orm: "None (raw queries)",
			wantLanguage: LanguageCSharp, wantDatabase: DatabaseSQLServer, wantORM: ORMNone,
		},
		{
			name:     "codes and empty orm",
			language: "python", framework: "Flask", database: "json", orm: "",
			wantLanguage: LanguagePython, wantDatabase: DatabaseJSON, wantORM: ORMNone,
		},
		{
			name:     "case insensitive",
			language: "TYPESCRIPT", framework: "Express", database: "postgresql", orm: "prisma",
			wantLanguage: LanguageTypeScript, wantDatabase: DatabasePostgreSQL, wantORM: ORMPrisma,
		},
		{name: "unknown language", language: "Cobol", framework: "x", database: "json", wantErr: true},
		{name: "unknown database", language: "Go", framework: "chi", database: "Oracle", wantErr: true},
		{name: "unknown orm", language: "Go", framework: "chi", database: "sqlite", orm: "gorm", wantErr: true},
		{name: "missing framework", language: "Go", framework: " ", database: "sqlite", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGenerationContext(tt.language, tt.framework, tt.database, tt.orm, "")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLanguage, g.Language)
			assert.Equal(t, tt.wantDatabase, g.Database)
			assert.Equal(t, tt.wantORM, g.ORM)
		})
	}
}

func TestGenerationContext_UsesORMAndKey(t *testing.T) {
	g := GenerationContext{Language: LanguagePython, Framework: " Flask ", Database: DatabaseSQLite, ORM: ORMSQLAlchemy}
	assert.True(t, g.UsesORM())
	assert.Equal(t, "python|flask|sqlite|sqlalchemy|", g.Key())

	g.ORM = ORMNone
	assert.False(t, g.UsesORM())
}

func TestDisplayNames(t *testing.T) {
	assert.Equal(t, "C#", LanguageCSharp.DisplayName())
	assert.Equal(t, "Microsoft SQL Server", DatabaseSQLServer.DisplayName())
	assert.Equal(t, "SQLAlchemy", ORMSQLAlchemy.DisplayName())
}
