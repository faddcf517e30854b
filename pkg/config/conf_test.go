package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radlabel/radlabel/pkg/label"
)

func writeLFConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadLFConfig(t *testing.T) {
	path := writeLFConfig(t, `
version: 1
lfs:
  - name: tb_terms
    vote: abnormal
    patterns:
      - tuberculosis
      - cavitary lesion
  - name: impression_clear
    vote: normal
    scope: impression
    patterns:
      - no acute
`)

	c, err := LoadLFConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Version)
	assert.False(t, c.ReplaceBuiltins)
	require.Len(t, c.LFs, 2)
	assert.Equal(t, "tb_terms", c.LFs[0].Name)
	assert.Equal(t, "abnormal", c.LFs[0].Vote)
	assert.Len(t, c.LFs[0].Patterns, 2)
	assert.Equal(t, "impression", c.LFs[1].Scope)
}

func TestLoadLFConfig_MissingFile(t *testing.T) {
	_, err := LoadLFConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadLFConfig_BadYAML(t *testing.T) {
	path := writeLFConfig(t, "lfs: [unclosed\n")
	_, err := LoadLFConfig(path)
	assert.ErrorContains(t, err, "parsing config file")
}

func TestLoadLFConfig_MissingVersion(t *testing.T) {
	path := writeLFConfig(t, `
lfs:
  - name: a
    vote: normal
    patterns: ["clear"]
`)
	_, err := LoadLFConfig(path)
	assert.ErrorContains(t, err, "invalid config file")
}

func TestLoadLFConfig_BadVote(t *testing.T) {
	path := writeLFConfig(t, `
version: 1
lfs:
  - name: a
    vote: maybe
    patterns: ["clear"]
`)
	_, err := LoadLFConfig(path)
	assert.ErrorContains(t, err, "invalid config file")
}

func TestLoadLFConfig_EmptyPatterns(t *testing.T) {
	path := writeLFConfig(t, `
version: 1
lfs:
  - name: a
    vote: normal
    patterns: []
`)
	_, err := LoadLFConfig(path)
	assert.ErrorContains(t, err, "invalid config file")
}

func TestLoadLFConfig_UnknownField(t *testing.T) {
	path := writeLFConfig(t, `
version: 1
weight: 2
lfs:
  - name: a
    vote: normal
    patterns: ["clear"]
`)
	_, err := LoadLFConfig(path)
	assert.ErrorContains(t, err, "invalid config file")
}

func TestLoadLFConfig_BadName(t *testing.T) {
	path := writeLFConfig(t, `
version: 1
lfs:
  - name: Bad Name
    vote: normal
    patterns: ["clear"]
`)
	_, err := LoadLFConfig(path)
	assert.ErrorContains(t, err, "invalid config file")
}

func TestLFConfig_Build(t *testing.T) {
	c := &LFConfig{
		Version: 1,
		LFs: []LFDef{
			{Name: "tb_terms", Vote: "abnormal", Patterns: []string{"tuberculosis", "cavitary"}},
			{Name: "impression_clear", Vote: "normal", Scope: "impression", Patterns: []string{"no acute"}},
		},
	}

	lfs, err := c.Build()
	require.NoError(t, err)
	require.Len(t, lfs, 2)

	tb := label.NewDocument("d1", "Findings consistent with active Tuberculosis.")
	assert.Equal(t, label.Abnormal, lfs[0].Eval(tb))
	assert.Equal(t, label.Abstain, lfs[1].Eval(tb))

	clear := label.NewDocument("d2", "FINDINGS: Stable exam. IMPRESSION: No acute disease.")
	assert.Equal(t, label.Abstain, lfs[0].Eval(clear))
	assert.Equal(t, label.Normal, lfs[1].Eval(clear))

	// impression-scoped LF stays silent when the section is missing
	flat := label.NewDocument("d3", "No acute disease.")
	assert.Equal(t, label.Abstain, lfs[1].Eval(flat))
}

func TestLFConfig_Build_BadPattern(t *testing.T) {
	c := &LFConfig{
		Version: 1,
		LFs: []LFDef{
			{Name: "broken", Vote: "abnormal", Patterns: []string{"(["}},
		},
	}

	_, err := c.Build()
	assert.ErrorContains(t, err, "bad pattern")
}

func TestLFConfig_Build_MergesWithBuiltins(t *testing.T) {
	c := &LFConfig{
		Version: 1,
		LFs: []LFDef{
			{Name: "tb_terms", Vote: "abnormal", Patterns: []string{"tuberculosis"}},
		},
	}

	custom, err := c.Build()
	require.NoError(t, err)

	merged, err := label.Merge(label.Builtins(), custom, false)
	require.NoError(t, err)
	assert.Len(t, merged, len(label.Builtins())+1)

	replaced, err := label.Merge(label.Builtins(), custom, true)
	require.NoError(t, err)
	assert.Len(t, replaced, 1)
}

func TestGetOrCreateHomeDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, created, err := GetOrCreateHomeDir("radlabel")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, filepath.Join(home, ".radlabel"), dir)

	dir2, created2, err := GetOrCreateHomeDir(".radlabel")
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, dir, dir2)
}

func TestGetOrCreateHomeDir_EmptyName(t *testing.T) {
	_, _, err := GetOrCreateHomeDir("")
	assert.Error(t, err)
}
