package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/AeonDave/cfgmatch/internal/selector"
)

// BuildEnv is the build configuration a set of flags is derived from.
type BuildEnv struct {
	GOOS       string
	GOARCH     string
	CgoEnabled bool
	GoVersion  string
	Tags       []string
}

// Flags returns every tag that holds for env: platform tags, "gc", "cgo"
// when enabled, release tags and the user tags.
func (env *BuildEnv) Flags() selector.Flags {
	f := selector.PlatformFlags(env.GOOS, env.GOARCH).With("gc")
	if env.CgoEnabled {
		f = f.With("cgo")
	}
	f = f.With(ReleaseTags(env.GoVersion)...)
	return f.With(env.Tags...)
}

// ForPlatform returns a copy of env targeting goos/goarch. Cgo is turned
// off when the platform differs, as the go command does for cross builds.
func (env *BuildEnv) ForPlatform(goos, goarch string) *BuildEnv {
	out := *env
	out.Tags = append([]string(nil), env.Tags...)
	if goos != env.GOOS || goarch != env.GOARCH {
		out.CgoEnabled = false
	}
	out.GOOS, out.GOARCH = goos, goarch
	return &out
}

// ReleaseTags returns go1.1 through the minor version of goVersion, e.g.
// "go1.22.3" yields go1.1 ... go1.22. Unparseable versions yield nil.
func ReleaseTags(goVersion string) []string {
	v := strings.TrimPrefix(goVersion, "go")
	v, _, _ = strings.Cut(v, " ")
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 || parts[0] != "1" {
		return nil
	}
	minor := parts[1]
	if i := strings.IndexFunc(minor, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		minor = minor[:i]
	}
	n, err := strconv.Atoi(minor)
	if err != nil || n < 1 {
		return nil
	}
	tags := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		tags = append(tags, "go1."+strconv.Itoa(i))
	}
	return tags
}

// SplitTags splits a -tags value. Both the comma form and the legacy
// space-separated form are accepted.
func SplitTags(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

// TagsFromGOFLAGS extracts the -tags values from a GOFLAGS string.
func TagsFromGOFLAGS(goflags string) ([]string, error) {
	if strings.TrimSpace(goflags) == "" {
		return nil, nil
	}
	args, err := shellwords.Parse(goflags)
	if err != nil {
		return nil, fmt.Errorf("parse GOFLAGS: %w", err)
	}
	var tags []string
	for i := 0; i < len(args); i++ {
		arg := strings.TrimPrefix(args[i], "-")
		arg = strings.TrimPrefix(arg, "-")
		switch {
		case strings.HasPrefix(arg, "tags="):
			tags = append(tags, SplitTags(strings.TrimPrefix(arg, "tags="))...)
		case arg == "tags" && i+1 < len(args):
			i++
			tags = append(tags, SplitTags(args[i])...)
		}
	}
	return tags, nil
}

// EnvResolver resolves a [BuildEnv] from the process environment, falling
// back to `go env` and finally to the running binary's platform.
type EnvResolver struct {
	Getenv func(string) string
	// GoEnv returns values for the requested `go env` keys.
	GoEnv func(ctx context.Context, keys ...string) (map[string]string, error)
}

// NewEnvResolver returns a resolver reading os.Getenv and `go env -json`.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{Getenv: os.Getenv, GoEnv: goEnv}
}

// Resolve builds the environment, appending extraTags after GOFLAGS tags.
func (r *EnvResolver) Resolve(ctx context.Context, extraTags ...string) (*BuildEnv, error) {
	keys := []string{"GOOS", "GOARCH", "CGO_ENABLED", "GOVERSION", "GOFLAGS"}
	vals := make(map[string]string, len(keys))
	var missing []string
	for _, k := range keys {
		if v := r.Getenv(k); v != "" {
			vals[k] = v
		} else {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 && r.GoEnv != nil {
		// Errors here are not fatal: the host defaults below still apply.
		if fromGo, err := r.GoEnv(ctx, missing...); err == nil {
			for k, v := range fromGo {
				if vals[k] == "" {
					vals[k] = v
				}
			}
		}
	}

	env := &BuildEnv{
		GOOS:      orDefault(vals["GOOS"], runtime.GOOS),
		GOARCH:    orDefault(vals["GOARCH"], runtime.GOARCH),
		GoVersion: orDefault(vals["GOVERSION"], runtime.Version()),
	}
	env.CgoEnabled = vals["CGO_ENABLED"] == "1"

	tags, err := TagsFromGOFLAGS(vals["GOFLAGS"])
	if err != nil {
		return nil, err
	}
	env.Tags = append(tags, extraTags...)

	return env, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func goEnv(ctx context.Context, keys ...string) (map[string]string, error) {
	args := append([]string{"env", "-json"}, keys...)
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Env = sanitizeGoEnv(os.Environ())
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("go env: %w", err)
	}
	vals := make(map[string]string, len(keys))
	if err := json.Unmarshal(out, &vals); err != nil {
		return nil, fmt.Errorf("decode go env: %w", err)
	}
	return vals, nil
}

// sanitizeGoEnv drops GOFLAGS so a nested go invocation does not inherit
// flags meant for the outer build, such as -toolexec.
func sanitizeGoEnv(env []string) []string {
	clean := make([]string, 0, len(env))
	for _, entry := range env {
		if strings.HasPrefix(entry, "GOFLAGS=") {
			continue
		}
		clean = append(clean, entry)
	}
	return clean
}

// ParsePlatform splits "goos/goarch".
func ParsePlatform(s string) (goos, goarch string, err error) {
	goos, goarch, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || goos == "" || goarch == "" || strings.Contains(goarch, "/") {
		return "", "", fmt.Errorf("invalid platform %q: want GOOS/GOARCH", s)
	}
	return goos, goarch, nil
}
