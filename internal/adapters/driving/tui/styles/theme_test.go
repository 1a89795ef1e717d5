package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTheme(t *testing.T) {
	theme := DefaultTheme()

	require.NotNil(t, theme)
	assert.NotEmpty(t, string(theme.Primary))
	assert.NotEmpty(t, string(theme.Secondary))
	assert.NotEmpty(t, string(theme.Muted))
	assert.NotEmpty(t, string(theme.Success))
	assert.NotEmpty(t, string(theme.Warning))
	assert.NotEmpty(t, string(theme.Error))
}

func TestNewStyles_NilThemeUsesDefault(t *testing.T) {
	s := NewStyles(nil)

	require.NotNil(t, s)
	assert.Equal(t, DefaultTheme(), s.Theme())
}

func TestStyles_Render(t *testing.T) {
	s := DefaultStyles()

	assert.Contains(t, s.Title.Render("Indexing"), "Indexing")
	assert.Contains(t, s.Error.Render("failed"), "failed")
}

func TestStyles_BarGradient(t *testing.T) {
	from, to := DefaultStyles().BarGradient()

	assert.Equal(t, "#7C3AED", from)
	assert.Equal(t, "#06B6D4", to)
}

func TestStyles_Table(t *testing.T) {
	out := DefaultStyles().Table().
		Headers("CHUNK", "TEXT").
		Row("3", "Chapter 1: Cells").
		Render()

	assert.Contains(t, out, "CHUNK")
	assert.Contains(t, out, "Chapter 1: Cells")
	assert.Contains(t, out, "│")
}
