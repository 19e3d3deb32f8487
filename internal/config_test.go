package internal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, ConfigFileName, `tags:
  - foo
  - bar
platforms:
  - linux/amd64
  - windows/arm64
exclude:
  - gen/*
  - "*_string.go"
log:
  level: debug
  format: json
`)

	cfg, err := LoadFileConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar"}, cfg.Tags)
	assert.Equal(t, []string{"linux/amd64", "windows/arm64"}, cfg.Platforms)
	assert.Equal(t, []string{"gen/*", "*_string.go"}, cfg.Exclude)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFileConfigErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		content string
		msg     string
	}{
		"unknown field": {
			content: "tags: [a]\nflavour: x\n",
			msg:     "unknown field",
		},
		"bad platform": {
			content: "platforms: [linux]\n",
			msg:     `invalid platform "linux"`,
		},
		"bad glob": {
			content: "exclude: [\"[\"]\n",
			msg:     "exclude",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := writeFile(t, t.TempDir(), ConfigFileName, tc.content)
			_, err := LoadFileConfig(path)
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestFindFileConfig(t *testing.T) {
	t.Parallel()

	t.Run("found in parent", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		writeFile(t, root, "go.mod", "module example.com/m\n")
		want := writeFile(t, root, ConfigFileName, "tags: [a]\n")
		writeFile(t, root, "pkg/sub/x.go", "package sub\n")

		assert.Equal(t, want, FindFileConfig(filepath.Join(root, "pkg", "sub")))
	})

	t.Run("stops at module root", func(t *testing.T) {
		t.Parallel()

		outer := t.TempDir()
		writeFile(t, outer, ConfigFileName, "tags: [outer]\n")
		writeFile(t, outer, "mod/go.mod", "module example.com/m\n")
		writeFile(t, outer, "mod/x.go", "package m\n")

		assert.Empty(t, FindFileConfig(filepath.Join(outer, "mod")))
	})
}

func TestLoadFileConfigFrom(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/m\n")

	cfg, err := LoadFileConfigFrom("", root)
	require.NoError(t, err)
	assert.Empty(t, cfg.Tags)

	_, err = LoadFileConfigFrom(filepath.Join(root, "missing.yaml"), root)
	require.Error(t, err)

	explicit := writeFile(t, root, "other.yaml", "tags: [x]\n")
	cfg, err = LoadFileConfigFrom(explicit, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, cfg.Tags)
}
