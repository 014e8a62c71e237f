// Package config loads project files and run settings.
//
// A project is described by leapgraph.yaml at its root. The same file also
// carries run settings (target, environments, state path); Load layers those
// with environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/leapgraph/pkg/core"
)

// ConfigFileName is the name of the project file.
const ConfigFileName = "leapgraph.yaml"

// ConfigFileNameAlt is the alternate name of the project file.
const ConfigFileNameAlt = "leapgraph.yml"

// maxUpwardSearchLevels limits how far up the directory tree to search for a project file.
const maxUpwardSearchLevels = 10

// LoadProject reads the project file in dir. The project name defaults to
// the directory name.
func LoadProject(dir string) (*core.ProjectConfig, error) {
	path := FindConfigFile(dir)
	if path == "" {
		return nil, &MissingProjectError{Dir: dir}
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("error reading project file %s: %w", path, err)
	}

	var cfg core.ProjectConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode project file %s: %w", path, err)
	}

	if cfg.Name == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		cfg.Name = filepath.Base(abs)
	}
	ApplyDefaults(&cfg)

	return &cfg, nil
}

// FindConfigFile returns the project file in dir, or "" if there is none.
func FindConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindProjectRoot walks up from startDir to the first directory holding a
// project file. Returns "" if none is found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		if FindConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// MissingProjectError is returned when a directory has no project file.
type MissingProjectError struct {
	Dir string
}

func (e *MissingProjectError) Error() string {
	return fmt.Sprintf("no %s found in %s\nHint: run from a project directory or pass --project-dir", ConfigFileName, e.Dir)
}
