package msgcat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedDefaults(t *testing.T) {
	c := Default()

	got, err := c.Render("score.centipawns", map[string]any{"Value": 42})
	require.NoError(t, err)
	assert.Equal(t, "42 centipawns", got)

	got, err = c.Render("error.fen_required", nil)
	require.NoError(t, err)
	assert.Equal(t, "FEN is required", got)
}

func TestRenderErrors(t *testing.T) {
	c := Default()

	_, err := c.Render("no.such.key", nil)
	assert.Error(t, err)

	_, err = c.Render("score.mate", map[string]any{})
	assert.Error(t, err, "missing field must fail")

	assert.Equal(t, "fallback", c.Text("no.such.key", nil, "fallback"))
	var nilCat *Catalog
	assert.Equal(t, "fallback", nilCat.Text("score.none", nil, "fallback"))
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("server:\n  banner: \"custom banner\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	c, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, "custom banner", c.Text("server.banner", nil, ""))
	assert.Equal(t, "no evaluation", c.Text("score.none", nil, ""))
}

func TestOverrideDirRejectsDuplicatesAndNonStrings(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("score:\n  none: \"x\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("score:\n  none: \"y\"\n"), 0o644))
	_, err := New(dir)
	assert.ErrorContains(t, err, "duplicate override key")

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("score:\n  none: 3\n"), 0o644))
	_, err = New(dir)
	assert.Error(t, err)

	_, err = New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
