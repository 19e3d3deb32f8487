package internal

import (
	"errors"
	"fmt"
	"go/build/constraint"
	"go/scanner"
	"go/token"
	"regexp"
	"strings"

	"github.com/AeonDave/cfgmatch/internal/selector"
)

// ErrSyntax is wrapped by every malformed-directive diagnostic.
var ErrSyntax = errors.New("cfgmatch: syntax error")

var directiveRe = regexp.MustCompile(DirectivePattern)

// SyntaxError is a malformed invocation, reported at the offending directive.
type SyntaxError struct {
	Pos token.Position
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: cfgmatch: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

// Invocation is one //cfg:match ... //cfg:end site.
type Invocation struct {
	Pos token.Position
	// EndLine is the 0-based index of the //cfg:end line.
	EndLine int
	// Arms holds the clauses in declaration order; a default arm, when
	// present, is always last.
	Arms []*Arm
}

// Arm is one //cfg:case or //cfg:default clause and the lines it guards.
type Arm struct {
	Pos     token.Position
	Default bool
	// Source is the predicate as written; empty for the default arm.
	Source string
	Expr   constraint.Expr
	// Start and End delimit the guarded lines as 0-based indices [Start, End).
	Start, End int
	Nested     []*Invocation
}

// Defaulted reports whether the invocation ends in a //cfg:default arm.
func (inv *Invocation) Defaulted() bool {
	return len(inv.Arms) > 0 && inv.Arms[len(inv.Arms)-1].Default
}

// Cases returns the non-default arms.
func (inv *Invocation) Cases() []*Arm {
	if inv.Defaulted() {
		return inv.Arms[:len(inv.Arms)-1]
	}
	return inv.Arms
}

// Predicates returns the predicates of the non-default arms.
func (inv *Invocation) Predicates() []constraint.Expr {
	cases := inv.Cases()
	out := make([]constraint.Expr, len(cases))
	for i, a := range cases {
		out[i] = a.Expr
	}
	return out
}

// Kind names the invocation form.
func (inv *Invocation) Kind() string {
	if inv.Defaulted() {
		return "defaulted"
	}
	return "exhaustive"
}

type directive struct {
	verb string
	arg  string
	col  int
}

// parseDirective recognizes a //cfg: directive line.
func parseDirective(line string) (directive, bool) {
	if !strings.Contains(line, DirectivePrefix) {
		return directive{}, false
	}
	m := directiveRe.FindStringSubmatch(line)
	if m == nil {
		return directive{}, false
	}
	return directive{verb: m[2], arg: m[3], col: len(m[1]) + 1}, true
}

func isBlankOrComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, "//")
}

type scanFrame struct {
	inv     *Invocation
	arm     *Arm
	badCode bool
}

type directiveScanner struct {
	filename string
	literal  map[int]bool
	stack    []*scanFrame
	top      []*Invocation
	errs     []error
}

// ScanDirectives finds every invocation in lines. Nested invocations are
// attached to the arm that contains them. Lines that start inside a block
// comment or a raw string literal are text, not directives. All syntax
// errors in the file are returned together.
func ScanDirectives(filename string, lines []string) ([]*Invocation, error) {
	s := &directiveScanner{
		filename: filename,
		literal:  literalLines(strings.Join(lines, "\n")),
	}
	for i, line := range lines {
		if s.literal[i] {
			continue
		}
		s.line(i, line)
	}
	for _, f := range s.stack {
		s.fail(f.inv.Pos, "//cfg:match without //cfg:end")
	}
	if len(s.errs) > 0 {
		return nil, errors.Join(s.errs...)
	}
	return s.top, nil
}

// literalLines returns the 0-based indices of lines that begin inside a
// multi-line token: a /* */ comment or a raw string.
func literalLines(src string) map[int]bool {
	lines := make(map[int]bool)
	if !strings.Contains(src, "/*") && !strings.Contains(src, "`") {
		return lines
	}

	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))
	var sc scanner.Scanner
	sc.Init(file, []byte(src), nil, scanner.ScanComments)
	for {
		pos, tok, lit := sc.Scan()
		if tok == token.EOF {
			break
		}
		if (tok != token.COMMENT && tok != token.STRING) || !strings.Contains(lit, "\n") {
			continue
		}
		first := file.Line(pos)
		last := first + strings.Count(lit, "\n")
		for l := first + 1; l <= last; l++ {
			lines[l-1] = true
		}
	}
	return lines
}

func (s *directiveScanner) pos(i, col int) token.Position {
	return token.Position{Filename: s.filename, Line: i + 1, Column: col}
}

func (s *directiveScanner) fail(pos token.Position, format string, args ...any) {
	s.errs = append(s.errs, &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

func (s *directiveScanner) current() *scanFrame {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

func (s *directiveScanner) line(i int, line string) {
	d, ok := parseDirective(line)
	top := s.current()
	if !ok {
		if top != nil && top.arm == nil && !top.badCode && !isBlankOrComment(line) {
			top.badCode = true
			s.fail(s.pos(i, 1), "code before the first //cfg:case or //cfg:default")
		}
		return
	}

	pos := s.pos(i, d.col)
	switch d.verb {
	case VerbMatch:
		s.match(pos, d)
	case VerbCase:
		s.caseArm(i, pos, d)
	case VerbDefault:
		s.defaultArm(i, pos, d)
	case VerbEnd:
		s.end(i, pos, d)
	default:
		s.fail(pos, "unknown directive //cfg:%s", d.verb)
	}
}

func (s *directiveScanner) match(pos token.Position, d directive) {
	if d.arg != "" {
		s.fail(pos, "unexpected %q after //cfg:match", d.arg)
	}
	inv := &Invocation{Pos: pos, EndLine: -1}
	if top := s.current(); top != nil {
		if top.arm == nil {
			s.fail(pos, "nested //cfg:match before the first clause")
		} else {
			top.arm.Nested = append(top.arm.Nested, inv)
		}
	} else {
		s.top = append(s.top, inv)
	}
	s.stack = append(s.stack, &scanFrame{inv: inv})
}

func (s *directiveScanner) caseArm(i int, pos token.Position, d directive) {
	top := s.current()
	if top == nil {
		s.fail(pos, "//cfg:case outside //cfg:match")
		return
	}
	if top.inv.Defaulted() {
		s.fail(pos, "//cfg:case after //cfg:default")
	}
	expr, err := selector.ParsePredicate(d.arg)
	if err != nil {
		s.fail(pos, "%v", err)
	}
	s.openArm(top, &Arm{Pos: pos, Source: strings.TrimSpace(d.arg), Expr: expr, Start: i + 1}, i)
}

func (s *directiveScanner) defaultArm(i int, pos token.Position, d directive) {
	top := s.current()
	if top == nil {
		s.fail(pos, "//cfg:default outside //cfg:match")
		return
	}
	if d.arg != "" {
		s.fail(pos, "unexpected %q after //cfg:default", d.arg)
	}
	if top.inv.Defaulted() {
		s.fail(pos, "duplicate //cfg:default")
		return
	}
	s.openArm(top, &Arm{Pos: pos, Default: true, Start: i + 1}, i)
}

func (s *directiveScanner) openArm(top *scanFrame, arm *Arm, i int) {
	if top.arm != nil {
		top.arm.End = i
	}
	top.arm = arm
	top.inv.Arms = append(top.inv.Arms, arm)
}

func (s *directiveScanner) end(i int, pos token.Position, d directive) {
	top := s.current()
	if top == nil {
		s.fail(pos, "//cfg:end outside //cfg:match")
		return
	}
	if d.arg != "" {
		s.fail(pos, "unexpected %q after //cfg:end", d.arg)
	}
	if top.arm != nil {
		top.arm.End = i
	}
	if len(top.inv.Arms) == 0 {
		s.fail(top.inv.Pos, "%v", selector.ErrEmptyMatch)
	}
	top.inv.EndLine = i
	s.stack = s.stack[:len(s.stack)-1]
}
