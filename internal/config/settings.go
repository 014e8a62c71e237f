package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/leapgraph/pkg/adapter"
	"github.com/leapstack-labs/leapgraph/pkg/core"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "LEAPGRAPH_"

// Settings are the run settings for one invocation.
type Settings struct {
	ProjectDir   string               `koanf:"project_dir"`
	StatePath    string               `koanf:"state_path"`
	TargetDir    string               `koanf:"target_dir"`
	Environment  string               `koanf:"environment"`
	Threads      int                  `koanf:"threads"`
	FailFast     bool                 `koanf:"fail_fast"`
	WarnError    bool                 `koanf:"warn_error"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	Target       *core.TargetConfig   `koanf:"target"`
	Environments map[string]EnvConfig `koanf:"environments"`

	// ConfigFile is the project file the settings were read from, if any.
	ConfigFile string `koanf:"-"`
}

// EnvConfig holds environment-specific overrides.
type EnvConfig struct {
	Target *core.TargetConfig `koanf:"target"`
}

// RunFlags returns the strictness switches.
func (s *Settings) RunFlags() core.RunFlags {
	return core.RunFlags{WarnError: s.WarnError, FailFast: s.FailFast}
}

// LoadOptions select what Load reads.
type LoadOptions struct {
	// ProjectDir is the project root. Empty searches upward from the
	// working directory.
	ProjectDir string
	// ConfigFile overrides the project file location.
	ConfigFile string
	// Environment selects an entry of environments; empty uses the
	// environment setting.
	Environment string
	// Flags are applied last; only flags the user set count.
	Flags *pflag.FlagSet
}

// Load reads settings. Precedence (highest to lowest):
// flags > LEAPGRAPH_ env vars > project file > defaults.
func Load(opts LoadOptions) (*Settings, error) {
	k := koanf.New(".")

	projectDir := opts.ProjectDir
	if projectDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		projectDir = FindProjectRoot(cwd)
		if projectDir == "" {
			projectDir = cwd
		}
	}

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"state_path":  DefaultStateFile,
		"target_dir":  DefaultTargetDir,
		"environment": DefaultEnv,
		"threads":     0,
		"fail_fast":   false,
		"warn_error":  false,
		"verbose":     false,
		"output":      DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Project file
	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = FindConfigFile(projectDir)
	} else if abs, err := filepath.Abs(configFile); err == nil && opts.ProjectDir == "" {
		projectDir = filepath.Dir(abs)
	}
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	// 3. Environment variables: LEAPGRAPH_STATE_PATH -> state_path
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			// --state is short for state_path
			if key == "state" {
				key = "state_path"
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	s.ConfigFile = configFile

	if s.ProjectDir == "" {
		s.ProjectDir = projectDir
	}
	if abs, err := filepath.Abs(s.ProjectDir); err == nil {
		s.ProjectDir = abs
	}
	s.StatePath = resolvePathRelativeTo(s.StatePath, s.ProjectDir)
	s.TargetDir = resolvePathRelativeTo(s.TargetDir, s.ProjectDir)

	envName := s.Environment
	if opts.Environment != "" {
		envName = opts.Environment
		s.Environment = envName
	}
	if envCfg, ok := s.Environments[envName]; ok && envCfg.Target != nil {
		s.Target = MergeTargetConfig(s.Target, envCfg.Target)
	}

	if s.Target == nil {
		s.Target = &core.TargetConfig{Type: "duckdb", Database: ":memory:"}
	}
	ApplyTargetDefaults(s.Target)
	expandTargetEnvVars(s.Target)
	if s.Target.Type == "duckdb" && s.Target.Database != "" && s.Target.Database != ":memory:" {
		s.Target.Database = resolvePathRelativeTo(s.Target.Database, s.ProjectDir)
	}

	if s.Threads <= 0 {
		s.Threads = s.Target.Threads
	}

	if err := ValidateTarget(s.Target); err != nil {
		return nil, fmt.Errorf("invalid target configuration: %w", err)
	}

	return &s, nil
}

// ValidateTarget checks the target names a registered adapter.
func ValidateTarget(t *core.TargetConfig) error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(t.Type) {
		return &adapter.UnknownAdapterError{Type: t.Type, Available: adapter.Available()}
	}
	return nil
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns. Unset variables are left as-is.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

// expandTargetEnvVars expands environment variables in sensitive target fields.
func expandTargetEnvVars(t *core.TargetConfig) {
	if t == nil {
		return
	}
	t.Password = expandEnvVars(t.Password)
	t.User = expandEnvVars(t.User)
	t.Host = expandEnvVars(t.Host)
	t.Database = expandEnvVars(t.Database)
}

// MergeTargetConfig merges two target configs, with override taking precedence.
func MergeTargetConfig(base, override *core.TargetConfig) *core.TargetConfig {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	merged := *base
	merged.Options = make(map[string]string, len(base.Options)+len(override.Options))
	maps.Copy(merged.Options, base.Options)
	maps.Copy(merged.Options, override.Options)

	if override.Type != "" {
		merged.Type = strings.ToLower(override.Type)
	}
	if override.Database != "" {
		merged.Database = override.Database
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	if override.Schema != "" {
		merged.Schema = override.Schema
	}
	if override.Threads != 0 {
		merged.Threads = override.Threads
	}
	if len(base.Params) > 0 || len(override.Params) > 0 {
		merged.Params = make(map[string]any, len(base.Params)+len(override.Params))
		maps.Copy(merged.Params, base.Params)
		maps.Copy(merged.Params, override.Params)
	}

	return &merged
}

// AdapterConfig converts a target to the adapter connection config.
func AdapterConfig(t *core.TargetConfig) core.AdapterConfig {
	return core.AdapterConfig{
		Type:     t.Type,
		Path:     t.Database,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  maps.Clone(t.Options),
		Params:   maps.Clone(t.Params),
	}
}
