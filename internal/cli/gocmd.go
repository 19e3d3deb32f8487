package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AeonDave/cfgmatch/internal"
)

// goCommands are the go subcommands that compile packages and can be run
// with cfgmatch installed as -toolexec.
var goCommands = []string{"build", "install", "run", "test"}

// goValueFlags are the go command flags that consume the next argument when
// written without "=".
var goValueFlags = map[string]bool{
	"C": true, "o": true, "p": true, "asmflags": true, "buildmode": true,
	"compiler": true, "gccgoflags": true, "gcflags": true, "installsuffix": true,
	"ldflags": true, "mod": true, "modfile": true, "overlay": true, "pgo": true,
	"pkgdir": true, "tags": true, "toolexec": true, "covermode": true,
	"coverpkg": true, "exec": true, "bench": true, "benchtime": true,
	"blockprofile": true, "count": true, "coverprofile": true, "cpu": true,
	"cpuprofile": true, "fuzz": true, "fuzzminimizetime": true, "fuzztime": true,
	"list": true, "memprofile": true, "mutexprofile": true, "outputdir": true,
	"parallel": true, "run": true, "shuffle": true, "skip": true,
	"timeout": true, "trace": true, "vet": true,
}

// exitError carries the exit code of a child process whose output was
// already forwarded.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// GoRunner runs the go command with args and returns its exit code.
type GoRunner func(ctx context.Context, args []string, stdout, stderr io.Writer) int

func NewGoCmds(ra *RootArgs) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(goCommands))
	for _, sub := range goCommands {
		cmds = append(cmds, newGoCmd(ra, sub))
	}
	return cmds
}

func newGoCmd(ra *RootArgs, sub string) *cobra.Command {
	return &cobra.Command{
		Use:   sub + " [go flags] [packages]",
		Short: fmt.Sprintf("Run go %s with cfgmatch as -toolexec", sub),
		Long: fmt.Sprintf(`Run go %s with cfgmatch installed as -toolexec. The -tags given on the
command line, in %s and in $%s_TAGS are passed to both the go command and
cfgmatch, so file selection and block selection see the same build tags.`,
			sub, internal.ConfigFileName, internal.EnvPrefix),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs, err := ra.goArgs(sub, args)
			if err != nil {
				return err
			}
			if code := ra.goRunner()(cmd.Context(), goArgs, cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

// goArgs builds the go command line for sub. -tags flags in the flag part
// of args are merged with the configured tags into a single -tags flag,
// which is also handed to the cfgmatch -toolexec wrapper.
func (ra *RootArgs) goArgs(sub string, args []string) ([]string, error) {
	var lead, tags, rest []string
	vetSet := false

	i := 0
	for ; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || !strings.HasPrefix(arg, "-") || arg == "-" {
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		switch name {
		case "toolexec":
			return nil, fmt.Errorf("-toolexec is set by %s %s", cmdName, sub)
		case "tags":
			if !hasValue {
				if i+1 >= len(args) {
					return nil, fmt.Errorf("flag needs an argument: %s", arg)
				}
				i++
				value = args[i]
			}
			tags = append(tags, internal.SplitTags(value)...)
			continue
		case "vet":
			vetSet = true
		}
		dst := &rest
		if name == "C" {
			// go requires -C to come first
			dst = &lead
		}
		*dst = append(*dst, arg)
		if !hasValue && goValueFlags[name] && i+1 < len(args) {
			i++
			*dst = append(*dst, args[i])
		}
	}
	rest = append(rest, args[i:]...)

	configured, err := ra.configuredTags()
	if err != nil {
		return nil, err
	}
	tags = dedupe(append(configured, tags...))

	self, err := ra.executable()
	if err != nil {
		return nil, fmt.Errorf("locate %s executable: %w", cmdName, err)
	}
	toolexec := quoteArg(self)

	out := append([]string{sub}, lead...)
	if len(tags) > 0 {
		joined := strings.Join(tags, ",")
		out = append(out, "-tags="+joined)
		toolexec += " -tags=" + joined
	}
	out = append(out, "-toolexec="+toolexec)
	// vet type-checks the unexpanded sources
	if sub == "test" && !vetSet {
		out = append(out, "-vet=off")
	}
	return append(out, rest...), nil
}

// configuredTags returns the tags from the config file of the working
// directory and $CFGMATCH_TAGS.
func (ra *RootArgs) configuredTags() ([]string, error) {
	fileCfg, err := internal.LoadFileConfigFrom(ra.ConfigPath, ".")
	if err != nil {
		return nil, err
	}
	tags := append([]string(nil), fileCfg.Tags...)
	return append(tags, internal.SplitTags(os.Getenv(internal.EnvPrefix+"_TAGS"))...), nil
}

func (ra *RootArgs) executable() (string, error) {
	if ra.self != nil {
		return ra.self()
	}
	return os.Executable()
}

func (ra *RootArgs) goRunner() GoRunner {
	if ra.runGo != nil {
		return ra.runGo
	}
	return runGo
}

func runGo(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", cmdName, err)
		return 1
	}
	return 0
}

// quoteArg quotes s for the go command's -toolexec splitting, which groups
// words in single or double quotes.
func quoteArg(s string) string {
	if !strings.ContainsAny(s, " \t\n'\"") {
		return s
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	return `"` + s + `"`
}

func dedupe(tags []string) []string {
	out := tags[:0]
	for _, t := range tags {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
