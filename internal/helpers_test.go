package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AeonDave/cfgmatch/internal/selector"
)

// writeFile creates dir/rel with content, creating parents as needed.
func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func expandString(t *testing.T, src string, tags ...string) *Result {
	t.Helper()
	res, err := Expand("test.go", []byte(src), selector.NewFlags(tags...))
	require.NoError(t, err)
	return res
}

// kept returns the non-blank, non-directive lines of src, trimmed.
func kept(src []byte) []string {
	var out []string
	for _, line := range strings.Split(string(src), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, DirectivePrefix) {
			continue
		}
		out = append(out, line)
	}
	return out
}
