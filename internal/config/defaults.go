package config

import (
	"runtime"
	"strings"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// Default configuration values.
const (
	DefaultModelsDir    = "models"
	DefaultSeedsDir     = "seeds"
	DefaultTestsDir     = "tests"
	DefaultSnapshotsDir = "snapshots"
	DefaultAnalysesDir  = "analyses"
	DefaultMacrosDir    = "macros"
	DefaultDocsDir      = "docs"
	DefaultPackagesDir  = "packages"
	DefaultTargetDir    = "target"
	DefaultStateFile    = ".leapgraph/state.db"
	DefaultEnv          = "dev"
	DefaultOutput       = "auto" // TTY=text, otherwise markdown
)

// defaultSchemas maps adapter types to the schema relations land in when
// the target does not name one.
var defaultSchemas = map[string]string{
	"duckdb":   "main",
	"postgres": "public",
}

// DefaultThreads is the worker count used when neither the target nor a
// flag sets one.
func DefaultThreads() int {
	return min(runtime.NumCPU(), 8)
}

// ApplyDefaults fills unset directories of a ProjectConfig.
func ApplyDefaults(c *core.ProjectConfig) {
	if c == nil {
		return
	}
	setDefault(&c.ModelsDir, DefaultModelsDir)
	setDefault(&c.SeedsDir, DefaultSeedsDir)
	setDefault(&c.TestsDir, DefaultTestsDir)
	setDefault(&c.SnapshotsDir, DefaultSnapshotsDir)
	setDefault(&c.AnalysesDir, DefaultAnalysesDir)
	setDefault(&c.MacrosDir, DefaultMacrosDir)
	setDefault(&c.DocsDir, DefaultDocsDir)
	setDefault(&c.PackagesDir, DefaultPackagesDir)
	setDefault(&c.TargetDir, DefaultTargetDir)
}

// ApplyTargetDefaults applies default values to a TargetConfig based on the target type.
func ApplyTargetDefaults(t *core.TargetConfig) {
	if t == nil {
		return
	}

	t.Type = strings.ToLower(t.Type)
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}
	if t.Type == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
	if t.Threads <= 0 {
		t.Threads = DefaultThreads()
	}
}

// DefaultSchemaForType returns the default schema for a database type,
// "main" for unknown types.
func DefaultSchemaForType(dbType string) string {
	if s, ok := defaultSchemas[strings.ToLower(dbType)]; ok {
		return s
	}
	return "main"
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
