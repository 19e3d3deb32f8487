package internal

import (
	"bytes"
	"errors"
	"fmt"
	"go/build/constraint"
	"go/token"
	"strings"

	"github.com/AeonDave/cfgmatch/internal/selector"
)

// PosError attaches a source position to a selection failure.
type PosError struct {
	Pos token.Position
	Err error
}

func (e *PosError) Error() string {
	return fmt.Sprintf("%s: %v", e.Pos, e.Err)
}

func (e *PosError) Unwrap() error {
	return e.Err
}

// Selection records the arm chosen for one invocation.
type Selection struct {
	Invocation *Invocation
	// Arm is the surviving arm.
	Arm *Arm
	// Effective is the mutually exclusive predicate that held.
	Effective constraint.Expr
	// Depth is 0 for top-level invocations.
	Depth int
}

// Result is the expansion of one file.
type Result struct {
	Filename string
	// Original is the input; Source the expanded output.
	Original   []byte
	Source     []byte
	Changed    bool
	Selections []Selection
	// PrunedImports lists import paths removed because only elided blocks
	// used them.
	PrunedImports []string
}

// HasDirectives is a fast check for the presence of any directive.
func HasDirectives(src []byte) bool {
	return bytes.Contains(src, []byte(DirectivePrefix))
}

// Expand rewrites src so that each invocation keeps only the block of its
// selected arm. Lines of unselected arms are replaced by empty lines, which
// keeps the line of every surviving token unchanged.
func Expand(filename string, src []byte, flags selector.Flags) (*Result, error) {
	res := &Result{Filename: filename, Original: src, Source: src}
	if !HasDirectives(src) {
		return res, nil
	}

	lines := strings.Split(string(src), "\n")
	invs, err := ScanDirectives(filename, lines)
	if err != nil {
		return nil, err
	}
	if len(invs) == 0 {
		return res, nil
	}

	e := &expander{lines: lines, flags: flags, res: res}
	e.apply(invs, 0)
	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}

	out := []byte(strings.Join(e.lines, "\n"))
	if e.elided {
		out, res.PrunedImports = pruneImports(filename, src, out)
	}
	res.Source = out
	res.Changed = !bytes.Equal(out, src)
	return res, nil
}

type expander struct {
	lines  []string
	flags  selector.Flags
	res    *Result
	errs   []error
	elided bool
}

func (e *expander) apply(invs []*Invocation, depth int) {
	for _, inv := range invs {
		cases := inv.Cases()
		clauses := make([]selector.Clause[*Arm], len(cases))
		for i, a := range cases {
			clauses[i] = selector.Clause[*Arm]{Pred: a.Expr, Block: a}
		}
		var fallback **Arm
		if inv.Defaulted() {
			fallback = &inv.Arms[len(inv.Arms)-1]
		}

		sel, err := selector.Select(clauses, fallback, e.flags)
		if err != nil {
			e.errs = append(e.errs, &PosError{Pos: inv.Pos, Err: err})
			continue
		}

		for _, a := range inv.Arms {
			if a != sel.Block {
				e.blank(a.Start, a.End)
			}
		}
		e.res.Selections = append(e.res.Selections, Selection{
			Invocation: inv,
			Arm:        sel.Block,
			Effective:  sel.Effective,
			Depth:      depth,
		})
		e.apply(sel.Block.Nested, depth+1)
	}
}

func (e *expander) blank(start, end int) {
	for i := start; i < end; i++ {
		if e.lines[i] == "" || e.lines[i] == "\r" {
			continue
		}
		if strings.HasSuffix(e.lines[i], "\r") {
			e.lines[i] = "\r"
		} else {
			e.lines[i] = ""
		}
		e.elided = true
	}
}
