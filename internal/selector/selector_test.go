package selector_test

import (
	"go/build/constraint"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AeonDave/cfgmatch/internal/selector"
)

func pred(t *testing.T, src string) constraint.Expr {
	t.Helper()
	x, err := selector.ParsePredicate(src)
	require.NoError(t, err)
	return x
}

func clauses(t *testing.T, pairs ...string) []selector.Clause[string] {
	t.Helper()
	require.Zero(t, len(pairs)%2)
	out := make([]selector.Clause[string], 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, selector.Clause[string]{Pred: pred(t, pairs[i]), Block: pairs[i+1]})
	}
	return out
}

func ptr(s string) *string { return &s }

func TestSelect(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		clauses  []string
		fallback *string
		flags    selector.Flags
		want     string
		wantIdx  int
		wantErr  error
	}{
		"second clause matches": {
			clauses: []string{"A", "x", "B", "y"},
			flags:   selector.NewFlags("B"),
			want:    "y",
			wantIdx: 1,
		},
		"first match wins when both hold": {
			clauses: []string{"A", "x", "B", "y"},
			flags:   selector.NewFlags("A", "B"),
			want:    "x",
			wantIdx: 0,
		},
		"fallback when nothing holds": {
			clauses:  []string{"A", "x"},
			fallback: ptr("z"),
			flags:    selector.NewFlags(),
			want:     "z",
			wantIdx:  -1,
		},
		"exhaustive without match fails": {
			clauses: []string{"A", "x"},
			flags:   selector.NewFlags(),
			wantErr: selector.ErrNotImplemented,
		},
		"listed clause beats fallback": {
			clauses:  []string{"foo", "false", "test", "true"},
			fallback: ptr("false"),
			flags:    selector.NewFlags("test"),
			want:     "true",
			wantIdx:  1,
		},
		"fallback only": {
			fallback: ptr("z"),
			flags:    selector.NewFlags("A"),
			want:     "z",
			wantIdx:  -1,
		},
		"empty match": {
			flags:   selector.NewFlags("A"),
			wantErr: selector.ErrEmptyMatch,
		},
		"compound predicates": {
			clauses: []string{"linux && !cgo", "a", "linux || darwin", "b"},
			flags:   selector.NewFlags("linux", "cgo"),
			want:    "b",
			wantIdx: 1,
		},
		"negated predicate": {
			clauses: []string{"!windows", "posix", "windows", "win"},
			flags:   selector.NewFlags("windows"),
			want:    "win",
			wantIdx: 1,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := selector.Select(clauses(t, tc.clauses...), tc.fallback, tc.flags)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Block)
			assert.Equal(t, tc.wantIdx, got.Index)
			assert.Equal(t, tc.wantIdx < 0, got.Fallback())
		})
	}
}

func TestSelectNotImplementedMessage(t *testing.T) {
	t.Parallel()

	_, err := selector.Select(clauses(t, "foo", "false", "foo2", "false"), nil, selector.NewFlags("test"))
	require.Error(t, err)

	var nie *selector.NotImplementedError
	require.ErrorAs(t, err, &nie)
	assert.Len(t, nie.Tried, 2)
	assert.Equal(t, selector.NoMatchMessage, err.Error())
}

func TestSelectNilPredicate(t *testing.T) {
	t.Parallel()

	cs := []selector.Clause[string]{{Block: "x"}}
	_, err := selector.Select(cs, nil, selector.NewFlags())
	require.ErrorIs(t, err, selector.ErrNilPredicate)
}

func TestSelectDeterministic(t *testing.T) {
	t.Parallel()

	cs := clauses(t, "A", "x", "B", "y", "A && B", "z")
	flags := selector.NewFlags("A", "B")

	first, err := selector.Select(cs, nil, flags)
	require.NoError(t, err)

	for range 10 {
		got, err := selector.Select(cs, nil, flags)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

func TestEffective(t *testing.T) {
	t.Parallel()

	preds := []constraint.Expr{pred(t, "foo"), pred(t, "bar"), pred(t, "baz")}

	assert.Equal(t, "foo", selector.String(selector.Effective(preds, 0)))
	assert.Equal(t, "bar && !foo", selector.String(selector.Effective(preds, 1)))
	assert.Equal(t, "baz && !(foo || bar)", selector.String(selector.Effective(preds, 2)))
	assert.Equal(t, "!(foo || bar || baz)", selector.String(selector.FallbackPredicate(preds)))
	assert.Equal(t, "true", selector.String(selector.FallbackPredicate(nil)))

	all := selector.EffectiveAll(preds)
	require.Len(t, all, 4)
	assert.Equal(t, "!(foo || bar || baz)", selector.String(all[3]))
}

func TestEffectiveExclusive(t *testing.T) {
	t.Parallel()

	// Every assignment of A and B must satisfy at most one effective
	// predicate, fallback included.
	preds := []constraint.Expr{pred(t, "A"), pred(t, "B"), pred(t, "A || B")}
	all := selector.EffectiveAll(preds)

	for _, flags := range []selector.Flags{
		selector.NewFlags(),
		selector.NewFlags("A"),
		selector.NewFlags("B"),
		selector.NewFlags("A", "B"),
	} {
		held := 0
		for _, x := range all {
			if flags.Eval(x) {
				held++
			}
		}
		assert.Equal(t, 1, held, "flags %s", flags)
	}
}
