package core

// ProjectConfig holds project-level configuration read from leapgraph.yaml.
type ProjectConfig struct {
	Name         string `koanf:"name"`
	ModelsDir    string `koanf:"models_dir"`
	SeedsDir     string `koanf:"seeds_dir"`
	TestsDir     string `koanf:"tests_dir"`
	SnapshotsDir string `koanf:"snapshots_dir"`
	AnalysesDir  string `koanf:"analyses_dir"`
	MacrosDir    string `koanf:"macros_dir"`
	DocsDir      string `koanf:"docs_dir"`
	PackagesDir  string `koanf:"packages_dir"`
	TargetDir    string `koanf:"target_dir"`

	// Models is the nested config tree: package -> directory -> ... -> options.
	// Keys prefixed with "+" or matching a NodeConfig field are options,
	// other map-valued keys descend one directory level.
	Models map[string]any `koanf:"models"`
	Seeds  map[string]any `koanf:"seeds"`
	Tests  map[string]any `koanf:"tests"`

	// Vars are read by var() in templates.
	Vars map[string]any `koanf:"vars"`

	OnRunStart []string `koanf:"on_run_start"`
	OnRunEnd   []string `koanf:"on_run_end"`

	Target *TargetConfig `koanf:"target"`
}

// TargetConfig holds database target configuration.
type TargetConfig struct {
	Type string `koanf:"type"` // duckdb, postgres

	// File-based databases (DuckDB)
	Database string `koanf:"database"` // file path or database name

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Common
	Schema  string `koanf:"schema"`
	Threads int    `koanf:"threads"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Structured adapter parameters (e.g. DuckDB extensions and secrets)
	Params map[string]any `koanf:"params"`
}

// RunFlags are the strictness switches threaded through compile and run.
type RunFlags struct {
	// WarnError turns warnings (test-node reference errors, warn tests) into errors.
	WarnError bool
	// FailFast cancels the run on the first node failure.
	FailFast bool
}
