package selector

import (
	"fmt"
	"go/build/constraint"
	"slices"
	"strings"
)

// Flags is the read-only set of build-configuration flags that hold for a
// build. A tag absent from the set is false.
type Flags map[string]bool

// unixOS lists the GOOS values that satisfy the "unix" build tag.
var unixOS = map[string]bool{
	"aix":       true,
	"android":   true,
	"darwin":    true,
	"dragonfly": true,
	"freebsd":   true,
	"hurd":      true,
	"illumos":   true,
	"ios":       true,
	"linux":     true,
	"netbsd":    true,
	"openbsd":   true,
	"solaris":   true,
}

// impliedOS maps a GOOS to the extra GOOS tag it also satisfies.
var impliedOS = map[string]string{
	"android": "linux",
	"illumos": "solaris",
	"ios":     "darwin",
}

// NewFlags returns a flag set holding the given tags. Empty tags are ignored.
func NewFlags(tags ...string) Flags {
	f := make(Flags, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			f[t] = true
		}
	}
	return f
}

// PlatformFlags returns the tags satisfied by a GOOS/GOARCH pair, including
// implied operating systems and "unix".
func PlatformFlags(goos, goarch string) Flags {
	f := NewFlags(goos, goarch)
	if implied, ok := impliedOS[goos]; ok {
		f[implied] = true
	}
	if unixOS[goos] {
		f["unix"] = true
	}
	return f
}

// With returns a copy of f with tags added.
func (f Flags) With(tags ...string) Flags {
	out := make(Flags, len(f)+len(tags))
	for t := range f {
		out[t] = true
	}
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out[t] = true
		}
	}
	return out
}

// Has reports whether tag holds.
func (f Flags) Has(tag string) bool {
	return f[tag]
}

// Eval evaluates x against f. A nil expression holds.
func (f Flags) Eval(x constraint.Expr) bool {
	if x == nil {
		return true
	}
	return x.Eval(f.Has)
}

// Tags returns the set as a sorted slice.
func (f Flags) Tags() []string {
	out := make([]string, 0, len(f))
	for t, ok := range f {
		if ok {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

func (f Flags) String() string {
	return strings.Join(f.Tags(), ",")
}

// ParsePredicate parses a build-constraint expression written without the
// "//go:build" prefix, e.g. "linux && (amd64 || arm64)".
func ParsePredicate(src string) (constraint.Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty predicate")
	}
	if strings.ContainsAny(src, "\r\n") {
		return nil, fmt.Errorf("predicate %q spans multiple lines", src)
	}
	x, err := constraint.Parse("//go:build " + src)
	if err != nil {
		return nil, fmt.Errorf("invalid predicate %q: %w", src, err)
	}
	return x, nil
}
