// Package selector picks exactly one of several predicate-guarded blocks
// for a given build configuration.
//
// Clauses are tried in declaration order. Clause i is rewritten to
//
//	p_i && !(p_0 || ... || p_{i-1})
//
// so that at most one block survives even when predicates overlap: the
// earliest declaration wins. An optional fallback is guarded by the
// negation of every listed predicate, which makes the selection total.
package selector

import (
	"errors"
	"go/build/constraint"
)

// NoMatchMessage is the diagnostic emitted when an exhaustive match has no
// clause that holds under the current configuration.
const NoMatchMessage = "cfgmatch: //cfg:case <check desired feature case> was not implemented"

var (
	// ErrNotImplemented reports that no clause matched and no fallback exists.
	ErrNotImplemented = errors.New(NoMatchMessage)
	// ErrEmptyMatch reports a match with neither clauses nor fallback.
	ErrEmptyMatch = errors.New("match has no clauses and no default")
	// ErrNilPredicate reports a listed clause without a predicate.
	ErrNilPredicate = errors.New("clause has no predicate")
)

// Clause pairs a predicate with an opaque block.
type Clause[B any] struct {
	Pred  constraint.Expr
	Block B
}

// Selection is the outcome of [Select].
type Selection[B any] struct {
	// Index of the selected clause, or -1 when the fallback was taken.
	Index int
	// Effective is the rewritten predicate that held. It is nil when the
	// fallback was taken with no listed clauses, meaning "always".
	Effective constraint.Expr
	Block     B
}

// Fallback reports whether the fallback block was selected.
func (s Selection[B]) Fallback() bool {
	return s.Index < 0
}

// NotImplementedError is returned when no predicate holds and no fallback
// was given. It unwraps to [ErrNotImplemented].
type NotImplementedError struct {
	// Tried holds the predicates that were evaluated, in order.
	Tried []constraint.Expr
}

func (e *NotImplementedError) Error() string {
	return NoMatchMessage
}

func (e *NotImplementedError) Unwrap() error {
	return ErrNotImplemented
}

// Select returns the block of the first clause whose effective predicate
// holds under flags. When none holds, the fallback is returned if non-nil,
// otherwise a [*NotImplementedError].
func Select[B any](clauses []Clause[B], fallback *B, flags Flags) (Selection[B], error) {
	var zero Selection[B]

	if len(clauses) == 0 && fallback == nil {
		return zero, ErrEmptyMatch
	}

	preds := make([]constraint.Expr, len(clauses))
	for i, c := range clauses {
		if c.Pred == nil {
			return zero, ErrNilPredicate
		}
		preds[i] = c.Pred
	}

	for i, c := range clauses {
		eff := Effective(preds, i)
		if flags.Eval(eff) {
			return Selection[B]{Index: i, Effective: eff, Block: c.Block}, nil
		}
	}

	if fallback != nil {
		eff := FallbackPredicate(preds)
		return Selection[B]{Index: -1, Effective: eff, Block: *fallback}, nil
	}

	return zero, &NotImplementedError{Tried: preds}
}

// Effective builds the mutually exclusive form of preds[i]:
// preds[i] && !(preds[0] || ... || preds[i-1]).
func Effective(preds []constraint.Expr, i int) constraint.Expr {
	prior := anyOf(preds[:i])
	if prior == nil {
		return preds[i]
	}
	return &constraint.AndExpr{X: preds[i], Y: &constraint.NotExpr{X: prior}}
}

// FallbackPredicate is the guard of the implicit final clause:
// !(preds[0] || ... || preds[n-1]). It returns nil for an empty list.
func FallbackPredicate(preds []constraint.Expr) constraint.Expr {
	prior := anyOf(preds)
	if prior == nil {
		return nil
	}
	return &constraint.NotExpr{X: prior}
}

// EffectiveAll returns the effective predicate of every clause. The
// returned slice has one extra trailing element, the fallback guard.
func EffectiveAll(preds []constraint.Expr) []constraint.Expr {
	out := make([]constraint.Expr, 0, len(preds)+1)
	for i := range preds {
		out = append(out, Effective(preds, i))
	}
	return append(out, FallbackPredicate(preds))
}

// String renders a predicate in //go:build syntax, "true" for nil.
func String(x constraint.Expr) string {
	if x == nil {
		return "true"
	}
	return x.String()
}

func anyOf(preds []constraint.Expr) constraint.Expr {
	var acc constraint.Expr
	for _, p := range preds {
		if acc == nil {
			acc = p
			continue
		}
		acc = &constraint.OrExpr{X: acc, Y: p}
	}
	return acc
}
