package internal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"go/build/constraint"
	"go/parser"
	"go/token"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"github.com/AeonDave/cfgmatch/internal/log"
	"github.com/AeonDave/cfgmatch/internal/selector"
	"github.com/AeonDave/cfgmatch/internal/version"
)

// ToolexecOptions are the flags accepted before the wrapped tool path, as
// in -toolexec="cfgmatch -tags foo".
type ToolexecOptions struct {
	Tags       []string
	GOOS       string
	GOARCH     string
	ConfigPath string
	Verbose    bool
}

func newToolexecFlagSet(opts *ToolexecOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("cfgmatch", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)
	fs.StringSliceVar(&opts.Tags, "tags", nil, "extra build tags")
	fs.StringVar(&opts.GOOS, "goos", "", "override GOOS")
	fs.StringVar(&opts.GOARCH, "goarch", "", "override GOARCH")
	fs.StringVar(&opts.ConfigPath, "config", "", "config file path")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	return fs
}

// ParseToolexecArgs splits the wrapper flags from the tool path and the
// tool's own arguments.
func ParseToolexecArgs(args []string) (*ToolexecOptions, string, []string, error) {
	opts := &ToolexecOptions{}
	fs := newToolexecFlagSet(opts)
	if err := fs.Parse(normalizeGoFlags(args)); err != nil {
		return nil, "", nil, err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return nil, "", nil, errors.New("missing tool path")
	}
	return opts, rest[0], rest[1:], nil
}

// normalizeGoFlags rewrites go-style single-dash long flags (-tags=x) into
// the double-dash form pflag expects, up to the first positional argument.
func normalizeGoFlags(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out); i++ {
		a := out[i]
		if !strings.HasPrefix(a, "-") || a == "--" {
			break
		}
		name, _, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "--") && len(name) > 1 {
			out[i] = "-" + a
		}
		switch name {
		case "tags", "goos", "goarch", "config":
			if !hasValue {
				i++
			}
		}
	}
	return out
}

// IsToolexecMode reports whether args (without the program name) look like
// a toolexec invocation: wrapper flags followed by a Go tool path.
func IsToolexecMode(args []string) bool {
	_, tool, _, err := ParseToolexecArgs(args)
	if err != nil {
		return false
	}
	return looksLikeGoTool(tool)
}

func looksLikeGoTool(arg string) bool {
	if !filepath.IsAbs(arg) && !strings.Contains(arg, string(os.PathSeparator)) {
		return false
	}
	if strings.Contains(filepath.ToSlash(arg), "/pkg/tool/") {
		return true
	}
	base := strings.ToLower(filepath.Base(arg))
	base = strings.TrimSuffix(base, ".exe")
	switch base {
	case "compile", "link", "asm", "cgo", "pack", "buildid",
		"addr2line", "api", "cover", "dist", "doc", "fix", "nm",
		"objdump", "pprof", "test2json", "trace", "vet":
		return true
	default:
		return false
	}
}

// ToolexecManager wraps the Go compiler and cgo. It expands the user files
// of each invocation into a temporary directory and runs the real tool on
// the rewritten copies.
type ToolexecManager struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Resolver *EnvResolver
	// RunTool runs the wrapped tool with its standard output sent to stdout
	// and returns its exit code.
	RunTool func(ctx context.Context, stdout io.Writer, tool string, args []string) int
}

func NewToolexecManager() *ToolexecManager {
	return &ToolexecManager{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Resolver: NewEnvResolver(),
		RunTool:  runOriginalTool,
	}
}

// Run executes one toolexec invocation and returns the process exit code.
func (tm *ToolexecManager) Run(ctx context.Context, args []string) int {
	opts, tool, toolArgs, err := ParseToolexecArgs(args)
	if err != nil {
		_, _ = fmt.Fprintf(tm.Stderr, "Usage: cfgmatch [-tags list] [-goos os] [-goarch arch] <tool> [args...]: %v\n", err)
		return 2
	}
	verbose := opts.Verbose || os.Getenv(EnvPrefix+"_VERBOSE") == "1"
	logger := tm.logger(verbose)

	if !tm.isRewrittenTool(tool) {
		return tm.RunTool(ctx, tm.Stdout, tool, toolArgs)
	}
	if isVersionQuery(toolArgs) {
		return tm.versionQuery(ctx, opts, tool, toolArgs)
	}

	goFiles := extractGoFiles(toolArgs)
	userFiles := FilterUserFiles(goFiles, logger)
	if len(userFiles) == 0 {
		return tm.RunTool(ctx, tm.Stdout, tool, toolArgs)
	}

	var marked []string
	for _, f := range userFiles {
		if fileHasMarkers(f) {
			marked = append(marked, f)
		}
	}
	if len(marked) == 0 {
		return tm.RunTool(ctx, tm.Stdout, tool, toolArgs)
	}

	flags, err := tm.flags(ctx, opts, FindCommonDir(marked))
	if err != nil {
		_, _ = fmt.Fprintf(tm.Stderr, "cfgmatch: %v\n", err)
		return 2
	}
	logger.Debug("expanding", "tool", filepath.Base(tool), "files", marked, "flags", flags.String())
	if opts.GOOS == "" && opts.GOARCH == "" {
		if tags := unseenTags(userFiles, flags); len(tags) > 0 {
			logger.Warn("package was selected with build tags cfgmatch was not given; run cfgmatch build -tags=... or add -tags to -toolexec",
				"tags", strings.Join(tags, ","))
		}
	}

	tempDir, err := os.MkdirTemp("", "cfgmatch-*")
	if err != nil {
		_, _ = fmt.Fprintf(tm.Stderr, "cfgmatch: create temp directory: %v\n", err)
		return 1
	}
	defer func(path string) {
		_ = os.RemoveAll(path)
	}(tempDir)

	replacements, err := PrepareFiles(marked, flags, tempDir)
	if err != nil {
		// Diagnostics go out in compiler format; the build stops here.
		_, _ = fmt.Fprintln(tm.Stderr, err)
		return 1
	}
	for orig, repl := range replacements {
		logger.Debug("rewritten", "file", orig, "to", repl)
	}

	return tm.RunTool(ctx, tm.Stdout, tool, RewriteArgs(toolArgs, replacements))
}

// versionQuery answers the go command's -V=full probe. The build cache keys
// compiled packages on this line, so it is extended with an ID covering the
// cfgmatch binary and the active flags: changing either invalidates
// packages compiled through the wrapper.
func (tm *ToolexecManager) versionQuery(ctx context.Context, opts *ToolexecOptions, tool string, args []string) int {
	var buf bytes.Buffer
	if code := tm.RunTool(ctx, &buf, tool, args); code != 0 {
		_, _ = tm.Stdout.Write(buf.Bytes())
		return code
	}

	flags, err := tm.flags(ctx, opts, ".")
	if err != nil {
		_, _ = fmt.Fprintf(tm.Stderr, "cfgmatch: %v\n", err)
		return 2
	}

	line := strings.TrimSpace(buf.String())
	_, _ = fmt.Fprintf(tm.Stdout, "%s +cfgmatch buildID=_/_/_/%s\n", line, toolHash(line, flags))
	return 0
}

var selfID = sync.OnceValue(func() string {
	if exe, err := os.Executable(); err == nil {
		if f, err := os.Open(exe); err == nil {
			defer func() { _ = f.Close() }()
			h := sha256.New()
			if _, err := io.Copy(h, f); err == nil {
				return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
			}
		}
	}
	return version.GetVersion()
})

// toolHash identifies a wrapped tool together with the cfgmatch binary and
// the flags it expands with. The go command only uses the part after the
// last slash of a buildID on development toolchains.
func toolHash(line string, flags selector.Flags) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%s\n%s\n%s\n", line, selfID(), flags)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)[:15])
}

func (tm *ToolexecManager) logger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(log.CreateHandler(tm.Stderr, level, log.FormatLogfmt)).
		With("component", "cfgmatch")
}

func (tm *ToolexecManager) flags(ctx context.Context, opts *ToolexecOptions, dir string) (selector.Flags, error) {
	fileCfg, err := LoadFileConfigFrom(opts.ConfigPath, dir)
	if err != nil {
		return nil, err
	}
	extra := append([]string(nil), fileCfg.Tags...)
	extra = append(extra, SplitTags(os.Getenv(EnvPrefix+"_TAGS"))...)
	for _, t := range opts.Tags {
		extra = append(extra, SplitTags(t)...)
	}

	env, err := tm.Resolver.Resolve(ctx, extra...)
	if err != nil {
		return nil, err
	}
	if opts.GOOS != "" || opts.GOARCH != "" {
		env = env.ForPlatform(orDefault(opts.GOOS, env.GOOS), orDefault(opts.GOARCH, env.GOARCH))
	}
	return env.Flags(), nil
}

// isRewrittenTool selects the tools whose Go inputs are expanded: the
// compiler, and cgo so that cgo-translated files are expanded first.
func (tm *ToolexecManager) isRewrittenTool(tool string) bool {
	base := strings.TrimSuffix(filepath.Base(tool), ".exe")
	return base == "compile" || base == "cgo"
}

func isVersionQuery(args []string) bool {
	for _, a := range args {
		if a == "-V" || strings.HasPrefix(a, "-V=") {
			return true
		}
	}
	return false
}

func extractGoFiles(args []string) []string {
	var goFiles []string
	for _, arg := range args {
		if strings.HasSuffix(arg, ".go") && !strings.HasPrefix(arg, "-") {
			goFiles = append(goFiles, arg)
		}
	}
	return goFiles
}

// unseenTags returns the tags named by //go:build lines that are false under
// flags, leaving out tags flags already knows. The go command compiled those
// files, so a non-empty result means it ran with tags cfgmatch never saw.
func unseenTags(files []string, flags selector.Flags) []string {
	seen := make(map[string]bool)
	var out []string
	for _, file := range files {
		x := buildConstraint(file)
		if x == nil || flags.Eval(x) {
			continue
		}
		for _, tag := range constraintTags(x) {
			if flags.Has(tag) || seen[tag] || strings.HasPrefix(tag, "goexperiment.") {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
		}
	}
	slices.Sort(out)
	return out
}

// buildConstraint reads the //go:build line above the package clause of
// path, or nil when there is none.
func buildConstraint(path string) constraint.Expr {
	f, err := parser.ParseFile(token.NewFileSet(), path, nil, parser.PackageClauseOnly|parser.ParseComments)
	if err != nil {
		return nil
	}
	for _, group := range f.Comments {
		if group.Pos() > f.Package {
			break
		}
		for _, c := range group.List {
			if !constraint.IsGoBuild(c.Text) {
				continue
			}
			if x, err := constraint.Parse(c.Text); err == nil {
				return x
			}
		}
	}
	return nil
}

func constraintTags(x constraint.Expr) []string {
	switch x := x.(type) {
	case *constraint.TagExpr:
		return []string{x.Tag}
	case *constraint.NotExpr:
		return constraintTags(x.X)
	case *constraint.AndExpr:
		return append(constraintTags(x.X), constraintTags(x.Y)...)
	case *constraint.OrExpr:
		return append(constraintTags(x.X), constraintTags(x.Y)...)
	}
	return nil
}

// PrepareFiles expands each file into tempDir and returns the mapping from
// original argument to rewritten path. Each copy starts with a //line
// directive so positions refer to the original file. Files that expand to
// their original content are not copied. Errors of all files are joined.
func PrepareFiles(files []string, flags selector.Flags, tempDir string) (map[string]string, error) {
	replacements := make(map[string]string)
	var errs []error

	for i, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			abs = file
		}
		src, err := os.ReadFile(file)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", file, err))
			continue
		}
		res, err := Expand(abs, src, flags)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !res.Changed {
			continue
		}

		dir := filepath.Join(tempDir, strconv.Itoa(i))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			errs = append(errs, fmt.Errorf("mkdir %s: %w", dir, err))
			continue
		}
		dst := filepath.Join(dir, filepath.Base(file))
		content := append([]byte(lineDirective(abs)), res.Source...)
		if err := os.WriteFile(dst, content, 0o600); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", dst, err))
			continue
		}
		replacements[file] = dst
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return replacements, nil
}

func lineDirective(path string) string {
	return "//line " + filepath.ToSlash(path) + ":1\n"
}

// RewriteArgs substitutes file arguments according to replacements.
func RewriteArgs(args []string, replacements map[string]string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if repl, ok := replacements[arg]; ok {
			out[i] = repl
		} else {
			out[i] = arg
		}
	}
	return out
}

func runOriginalTool(ctx context.Context, stdout io.Writer, tool string, args []string) int {
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdout = stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return exitError.ExitCode()
		}
		_, _ = fmt.Fprintf(os.Stderr, "cfgmatch: %v\n", err)
		return 1
	}
	return 0
}
