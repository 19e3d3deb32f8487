package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReleaseTags(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		version string
		want    []string
	}{
		"release":     {version: "go1.3.2", want: []string{"go1.1", "go1.2", "go1.3"}},
		"no patch":    {version: "go1.2", want: []string{"go1.1", "go1.2"}},
		"prerelease":  {version: "go1.4rc1", want: []string{"go1.1", "go1.2", "go1.3", "go1.4"}},
		"devel":       {version: "devel go1.25-abcdef", want: nil},
		"experiments": {version: "go1.1 X:nocoverageredesign", want: []string{"go1.1"}},
		"garbage":     {version: "banana", want: nil},
		"go2":         {version: "go2.0", want: nil},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ReleaseTags(tc.version))
		})
	}

	assert.Len(t, ReleaseTags("go1.25.1"), 25)
	assert.Equal(t, "go1.25", ReleaseTags("go1.25.1")[24])
}

func TestSplitTags(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b", "c"}, SplitTags("a,b c"))
	assert.Equal(t, []string{"a"}, SplitTags(" a, "))
	assert.Empty(t, SplitTags(""))
}

func TestTagsFromGOFLAGS(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		goflags string
		want    []string
		wantErr bool
	}{
		"empty":           {goflags: "", want: nil},
		"equals form":     {goflags: "-tags=foo,bar", want: []string{"foo", "bar"}},
		"double dash":     {goflags: "--tags=foo", want: []string{"foo"}},
		"separate value":  {goflags: "-mod=mod -tags foo", want: []string{"foo"}},
		"quoted":          {goflags: `-tags="foo bar" -trimpath`, want: []string{"foo", "bar"}},
		"repeated":        {goflags: "-tags=a -tags=b", want: []string{"a", "b"}},
		"no tags":         {goflags: "-mod=vendor -trimpath", want: nil},
		"unbalanced":      {goflags: `-tags="foo`, wantErr: true},
		"dangling option": {goflags: "-tags", want: nil},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := TagsFromGOFLAGS(tc.goflags)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func fakeResolver(env map[string]string, goEnv map[string]string, goEnvErr error) *EnvResolver {
	return &EnvResolver{
		Getenv: func(k string) string { return env[k] },
		GoEnv: func(_ context.Context, keys ...string) (map[string]string, error) {
			if goEnvErr != nil {
				return nil, goEnvErr
			}
			out := make(map[string]string, len(keys))
			for _, k := range keys {
				out[k] = goEnv[k]
			}
			return out, nil
		},
	}
}

func TestEnvResolverResolve(t *testing.T) {
	t.Parallel()

	t.Run("environment wins over go env", func(t *testing.T) {
		t.Parallel()

		r := fakeResolver(
			map[string]string{"GOOS": "windows", "GOFLAGS": "-tags=env"},
			map[string]string{"GOOS": "linux", "GOARCH": "arm64", "CGO_ENABLED": "1", "GOVERSION": "go1.2"},
			nil,
		)
		env, err := r.Resolve(t.Context(), "extra")
		require.NoError(t, err)

		assert.Equal(t, "windows", env.GOOS)
		assert.Equal(t, "arm64", env.GOARCH)
		assert.True(t, env.CgoEnabled)
		assert.Equal(t, "go1.2", env.GoVersion)
		assert.Equal(t, []string{"env", "extra"}, env.Tags)

		flags := env.Flags()
		for _, tag := range []string{"windows", "arm64", "gc", "cgo", "go1.1", "go1.2", "env", "extra"} {
			assert.True(t, flags.Has(tag), tag)
		}
		assert.False(t, flags.Has("unix"))
		assert.False(t, flags.Has("go1.3"))
	})

	t.Run("go env failure falls back to host", func(t *testing.T) {
		t.Parallel()

		r := fakeResolver(map[string]string{"CGO_ENABLED": "0"}, nil, errors.New("no go"))
		env, err := r.Resolve(t.Context())
		require.NoError(t, err)

		assert.NotEmpty(t, env.GOOS)
		assert.NotEmpty(t, env.GOARCH)
		assert.NotEmpty(t, env.GoVersion)
		assert.False(t, env.CgoEnabled)
		assert.Empty(t, env.Tags)
	})

	t.Run("bad GOFLAGS", func(t *testing.T) {
		t.Parallel()

		r := fakeResolver(map[string]string{"GOFLAGS": `-tags="x`}, nil, nil)
		_, err := r.Resolve(t.Context())
		require.ErrorContains(t, err, "parse GOFLAGS")
	})
}

func TestBuildEnvForPlatform(t *testing.T) {
	t.Parallel()

	env := &BuildEnv{GOOS: "linux", GOARCH: "amd64", CgoEnabled: true, GoVersion: "go1.2", Tags: []string{"t"}}

	same := env.ForPlatform("linux", "amd64")
	assert.True(t, same.CgoEnabled)

	cross := env.ForPlatform("android", "arm64")
	assert.False(t, cross.CgoEnabled)
	assert.Equal(t, "android", cross.GOOS)
	assert.Equal(t, "linux", env.GOOS)

	flags := cross.Flags()
	assert.True(t, flags.Has("android"))
	assert.True(t, flags.Has("linux"))
	assert.True(t, flags.Has("unix"))
	assert.True(t, flags.Has("t"))
	assert.False(t, flags.Has("cgo"))
}

func TestSanitizeGoEnv(t *testing.T) {
	t.Parallel()

	got := sanitizeGoEnv([]string{"PATH=/bin", "GOFLAGS=-toolexec=x", "GOOS=linux"})
	assert.Equal(t, []string{"PATH=/bin", "GOOS=linux"}, got)
}

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	goos, goarch, err := ParsePlatform(" linux/arm64 ")
	require.NoError(t, err)
	assert.Equal(t, "linux", goos)
	assert.Equal(t, "arm64", goarch)

	for _, bad := range []string{"", "linux", "/amd64", "linux/", "linux/arm/v7"} {
		_, _, err := ParsePlatform(bad)
		assert.Error(t, err, bad)
	}
}
