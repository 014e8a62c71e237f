package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"auto", ModeAuto, false},
		{"TEXT", ModeText, false},
		{"md", ModeMarkdown, false},
		{"json", ModeJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "must be one of")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderer_EffectiveMode(t *testing.T) {
	var out, errOut bytes.Buffer

	assert.Equal(t, ModeText, NewRendererWithTTY(&out, &errOut, true, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeMarkdown, NewRendererWithTTY(&out, &errOut, false, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeJSON, NewRendererWithTTY(&out, &errOut, true, ModeJSON).EffectiveMode())
	assert.Equal(t, ModeMarkdown, NewRendererWithTTY(&out, &errOut, false, "").EffectiveMode())

	// A buffer is never a terminal.
	assert.False(t, NewRenderer(&out, &errOut, ModeAuto).IsTTY())
}

func TestRenderer_Table(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		var out bytes.Buffer
		r := NewRendererWithTTY(&out, &out, false, ModeMarkdown)
		r.Table([]string{"id", "status"}, [][]string{{"model.shop.orders", "success"}})

		assert.Contains(t, out.String(), "| model.shop.orders | success |")
	})

	t.Run("text", func(t *testing.T) {
		var out bytes.Buffer
		r := NewRendererWithTTY(&out, &out, false, ModeText)
		r.Table([]string{"id"}, [][]string{{"model.shop.orders"}})

		assert.Contains(t, out.String(), "model.shop.orders")
		assert.Contains(t, out.String(), "┌")
	})
}

func TestRenderer_MessagesAndJSON(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRendererWithTTY(&out, &errOut, false, ModeText)

	r.Header(1, "Run")
	r.Success("done")
	r.Warning("careful")
	r.Error("broken")
	require.NoError(t, r.JSON(map[string]int{"nodes": 2}))

	assert.Contains(t, out.String(), "Run\n")
	assert.Contains(t, out.String(), "✓ done")
	assert.Contains(t, out.String(), "\"nodes\": 2")
	assert.Contains(t, errOut.String(), "! careful")
	assert.Contains(t, errOut.String(), "✗ broken")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "## Summary", FormatHeader(2, "Summary"))
	assert.Equal(t, "# Top", FormatHeader(0, "Top"))
	assert.Equal(t, "- **Nodes:** 3", FormatKeyValue("Nodes", "3"))
}
