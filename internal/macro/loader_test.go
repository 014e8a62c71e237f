package macro

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

// writeMacros creates a macros directory holding the given .star files.
func writeMacros(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "macros")
	require.NoError(t, os.Mkdir(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestLoader_Load(t *testing.T) {
	t.Run("missing directory yields nothing", func(t *testing.T) {
		modules, err := NewLoader(filepath.Join(t.TempDir(), "macros")).Load()
		require.NoError(t, err)
		assert.Nil(t, modules)
	})

	t.Run("file in place of directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "macros")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		_, err := NewLoader(path).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})

	t.Run("empty directory", func(t *testing.T) {
		modules, err := NewLoader(writeMacros(t, nil)).Load()
		require.NoError(t, err)
		assert.Empty(t, modules)
	})

	t.Run("one namespace per file", func(t *testing.T) {
		dir := writeMacros(t, map[string]string{
			"money.star": `
def dollars(col):
    return col + " / 100.0"

_rate = 100
`,
			"dates.star": `
def day(col):
    return "date_trunc('day', " + col + ")"
`,
			"README.md": "ignored",
		})

		modules, err := NewLoader(dir).Load()
		require.NoError(t, err)
		require.Len(t, modules, 2)

		byNS := map[string]*LoadedModule{}
		for _, m := range modules {
			byNS[m.Namespace] = m
		}
		require.Contains(t, byNS, "money")
		require.Contains(t, byNS, "dates")
		assert.Contains(t, byNS["money"].Exports, "dollars")
		assert.NotContains(t, byNS["money"].Exports, "_rate")
	})
}

func TestLoader_LoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		body  string
		match string
	}{
		{"syntax error", "broken.star", "def broken(:\n    return 1\n", "execution error"},
		{"runtime error", "boom.star", "x = 1 // 0\n", "execution error"},
		{"bad namespace", "9lives.star", "x = 1\n", `namespace "9lives" must be an identifier`},
		{"dash in namespace", "my-utils.star", "x = 1\n", "must be an identifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeMacros(t, map[string]string{tt.file: tt.body})

			_, err := NewLoader(dir).Load()
			require.Error(t, err)

			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr), "got %T", err)
			assert.Equal(t, filepath.Join(dir, tt.file), loadErr.File)
			assert.Contains(t, loadErr.Error(), tt.match)
		})
	}
}

func TestValidateNamespace(t *testing.T) {
	for _, ok := range []string{"money", "date_time", "_internal", "v2"} {
		assert.NoError(t, validateNamespace(ok), ok)
	}
	for _, bad := range []string{"", "2fast", "a-b", "a b", "a.b"} {
		assert.Error(t, validateNamespace(bad), bad)
	}
}

func TestLoader_ExportsAreFrozenAndCallable(t *testing.T) {
	dir := writeMacros(t, map[string]string{"money.star": `
def dollars(col, scale=2):
    return "round(" + col + " / 100.0, " + str(scale) + ")"
`})

	modules, err := NewLoader(dir).Load()
	require.NoError(t, err)
	require.Len(t, modules, 1)

	thread := &starlark.Thread{Name: "test"}
	got, err := starlark.Call(thread, modules[0].Exports["dollars"],
		starlark.Tuple{starlark.String("amount_cents")}, nil)
	require.NoError(t, err)
	assert.Equal(t, starlark.String("round(amount_cents / 100.0, 2)"), got)
}

func TestLoader_PackageAndSignatures(t *testing.T) {
	dir := writeMacros(t, map[string]string{"money.star": `
def cents_to_dollars(col, scale=2):
    """Converts an integer cents column to dollars."""
    return "round(" + col + " / 100.0, " + str(scale) + ")"
`})

	modules, err := NewLoader(dir, WithPackage("shop")).Load()
	require.NoError(t, err)
	require.Len(t, modules, 1)

	m := modules[0]
	assert.Equal(t, "shop", m.Package)
	assert.Equal(t, "macros/money.star", m.RelPath)

	sig, ok := m.Signature("cents_to_dollars")
	require.True(t, ok)
	assert.Equal(t, "cents_to_dollars(col, scale=2)", sig.String())
	assert.Equal(t, "Converts an integer cents column to dollars.", sig.Doc)
	assert.Equal(t, 2, sig.Line)

	_, ok = m.Signature("missing")
	assert.False(t, ok)
}
