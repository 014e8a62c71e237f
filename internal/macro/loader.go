// Package macro loads Starlark macros from .star files.
// Each file becomes a namespace named after the file; its public top-level
// names are the namespace's exports. Every exported function is also a
// macro node in the manifest so templates can depend on it.
package macro

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const fileExt = ".star"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Loader reads the .star files of one macros directory.
type Loader struct {
	dir string
	pkg string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPackage sets the package the loaded macros belong to.
func WithPackage(pkg string) LoaderOption {
	return func(l *Loader) { l.pkg = pkg }
}

// NewLoader returns a loader for dir.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{dir: dir}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadedModule is one executed macro file.
type LoadedModule struct {
	// Namespace is the file name without extension: dates.star is "dates".
	Namespace string
	Package   string
	Path      string
	// RelPath is relative to the package root, e.g. "macros/dates.star".
	RelPath string
	// Exports holds the frozen public globals.
	Exports starlark.StringDict
	// Signatures lists public functions in file order.
	Signatures []Signature
}

// Signature looks up an exported function's signature.
func (m *LoadedModule) Signature(name string) (Signature, bool) {
	for _, sig := range m.Signatures {
		if sig.Name == name {
			return sig, true
		}
	}
	return Signature{}, false
}

// Load executes every .star file in the directory, in name order.
// A missing directory yields no modules.
func (l *Loader) Load() ([]*LoadedModule, error) {
	switch info, err := os.Stat(l.dir); {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to access macros directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("macros path is not a directory: %s", l.dir)
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan macros directory: %w", err)
	}

	var modules []*LoadedModule
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != fileExt {
			continue
		}
		m, err := l.loadFile(filepath.Join(l.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

func (l *Loader) loadFile(path string) (*LoadedModule, error) {
	base := filepath.Base(path)
	namespace := strings.TrimSuffix(base, fileExt)
	if err := validateNamespace(namespace); err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	content, err := os.ReadFile(path) //nolint:gosec // G304: path is an entry of the macros directory
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	thread := &starlark.Thread{Name: "macros/" + base, Print: func(*starlark.Thread, string) {}}
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{Set: true}, thread, path, content, nil)
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}
	// Renders on other threads share these values.
	globals.Freeze()
	maps.DeleteFunc(globals, func(name string, _ starlark.Value) bool {
		return strings.HasPrefix(name, "_")
	})

	// The file executed, so it parses.
	sigs, _ := scanSignatures(path, content)

	return &LoadedModule{
		Namespace:  namespace,
		Package:    l.pkg,
		Path:       path,
		RelPath:    filepath.ToSlash(filepath.Join(filepath.Base(l.dir), base)),
		Exports:    globals,
		Signatures: sigs,
	}, nil
}

// validateNamespace reports whether a file name can be used as a template
// identifier.
func validateNamespace(name string) error {
	if !identifier.MatchString(name) {
		return fmt.Errorf("namespace %q must be an identifier (letters, digits, underscore; not starting with a digit)", name)
	}
	return nil
}

// LoadError reports a macro file that could not be loaded.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return "macros/" + filepath.Base(e.File) + ": " + e.Message
}
