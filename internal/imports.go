package internal

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/tools/go/ast/astutil"
)

// pruneImports removes imports that were used by the original source but
// are no longer used after expansion. Removed specs are overwritten with
// spaces so offsets and lines stay put. Blank and dot imports are kept, as
// is any import whose name cannot be found among the qualifiers of the
// original file. If either source does not parse, out is returned as is
// and the compiler reports the problem.
func pruneImports(filename string, orig, out []byte) ([]byte, []string) {
	origFile, err := parser.ParseFile(token.NewFileSet(), filename, orig, 0)
	if err != nil {
		return out, nil
	}
	fset := token.NewFileSet()
	outFile, err := parser.ParseFile(fset, filename, out, 0)
	if err != nil {
		return out, nil
	}

	before := qualifiers(origFile)
	after := qualifiers(outFile)

	var pruned []string
	buf := append([]byte(nil), out...)
	tf := fset.File(outFile.Pos())

	for _, group := range astutil.Imports(fset, outFile) {
		for _, is := range group {
			importPath, err := strconv.Unquote(is.Path.Value)
			if err != nil {
				continue
			}
			name := importName(is, importPath)
			if name == "" || !before[name] || after[name] {
				continue
			}

			var node ast.Node = is
			if gen := importDecl(outFile, is); gen != nil && !gen.Lparen.IsValid() {
				node = gen
			}
			blankRange(buf, tf.Offset(node.Pos()), tf.Offset(node.End()))
			pruned = append(pruned, importPath)
		}
	}

	if len(pruned) == 0 {
		return out, nil
	}
	return buf, pruned
}

// qualifiers collects the identifiers used as X in X.Sel that do not
// resolve to a declaration in the file, i.e. package names.
func qualifiers(f *ast.File) map[string]bool {
	used := make(map[string]bool)
	ast.Inspect(f, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if id, ok := sel.X.(*ast.Ident); ok && id.Obj == nil {
			used[id.Name] = true
		}
		return true
	})
	return used
}

// importName is the name a spec binds in the file: the explicit name, or
// the name goimports assumes for the path. Blank and dot imports yield "".
func importName(is *ast.ImportSpec, importPath string) string {
	if is.Name != nil {
		if is.Name.Name == "_" || is.Name.Name == "." {
			return ""
		}
		return is.Name.Name
	}
	return assumedPackageName(importPath)
}

// assumedPackageName guesses the package name of importPath the way
// goimports does: a /vN major version element is skipped, a "go-" prefix
// dropped, and the name cut at the first non-identifier rune, which turns
// "yaml.v3" into "yaml" and "cobra-go" into "cobra".
func assumedPackageName(importPath string) string {
	base := path.Base(importPath)
	if strings.HasPrefix(base, "v") {
		if _, err := strconv.Atoi(base[1:]); err == nil {
			if dir := path.Dir(importPath); dir != "." {
				base = path.Base(dir)
			}
		}
	}
	base = strings.TrimPrefix(base, "go-")
	if i := strings.IndexFunc(base, notIdentifier); i >= 0 {
		base = base[:i]
	}
	return base
}

func notIdentifier(r rune) bool {
	return !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
}

func importDecl(f *ast.File, is *ast.ImportSpec) *ast.GenDecl {
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.IMPORT {
			continue
		}
		for _, spec := range gen.Specs {
			if spec == is {
				return gen
			}
		}
	}
	return nil
}

func blankRange(buf []byte, start, end int) {
	for i := start; i < end && i < len(buf); i++ {
		if buf[i] != '\n' && buf[i] != '\r' {
			buf[i] = ' '
		}
	}
}
