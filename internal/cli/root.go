// Package cli implements the cfgmatch command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AeonDave/cfgmatch/internal"
	"github.com/AeonDave/cfgmatch/internal/log"
	"github.com/AeonDave/cfgmatch/internal/selector"
)

const (
	cmdName = "cfgmatch"
	cmdDesc = `Build-time selection of code blocks by build constraint.`
	cmdLong = `cfgmatch keeps exactly one block of each //cfg:match invocation, chosen by
Go build-constraint predicates evaluated for the current build, and fails the
build when an exhaustive match has no matching case.`
	cmdExamples = `
  # Build through cfgmatch (recommended). Tags reach both go and cfgmatch.
  cfgmatch build -tags=foo ./...
  cfgmatch test ./...

  # The same build with the go command directly.
  go build -tags=foo -toolexec="cfgmatch -tags=foo" ./...

  # Check every invocation against a platform matrix.
  cfgmatch check --platform linux/amd64 --platform windows/amd64 ./...
`
)

// errSilent marks failures whose details were already printed.
var errSilent = errors.New("failed")

// RootArgs holds the flags shared by every subcommand.
type RootArgs struct {
	LogLevel   string
	LogFormat  string
	Tags       []string
	GOOS       string
	GOARCH     string
	ConfigPath string

	resolver *internal.EnvResolver
	runGo    GoRunner
	self     func() (string, error)
}

func NewRootArgs() *RootArgs {
	return &RootArgs{resolver: internal.NewEnvResolver()}
}

func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVar(&ra.LogLevel, "log-level", "warn", fmt.Sprintf("Log level, one of: %s", log.AllLevels))
	cmd.PersistentFlags().
		StringVar(&ra.LogFormat, "log-format", "text", fmt.Sprintf("Log format, one of: %s", log.AllFormats))
	cmd.PersistentFlags().StringSliceVar(&ra.Tags, "tags", nil, "Extra build tags, comma separated")
	cmd.PersistentFlags().StringVar(&ra.GOOS, "goos", "", "Target GOOS (default: go env GOOS)")
	cmd.PersistentFlags().StringVar(&ra.GOARCH, "goarch", "", "Target GOARCH (default: go env GOARCH)")
	cmd.PersistentFlags().StringVar(&ra.ConfigPath, "config", "", "Path to "+internal.ConfigFileName)

	must(cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(log.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	))
	must(cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(log.AllLevels, cobra.ShellCompDirectiveNoFileComp),
	))
}

// buildContext is what a command needs to expand files under a path.
type buildContext struct {
	env     *internal.BuildEnv
	file    *internal.FileConfig
	flags   selector.Flags
	exclude []string
}

// resolve loads the config for path and the build environment, applying
// --goos/--goarch overrides.
func (ra *RootArgs) resolve(ctx context.Context, path string) (*buildContext, error) {
	dir := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		dir = dirOf(path)
	}

	fileCfg, err := internal.LoadFileConfigFrom(ra.ConfigPath, dir)
	if err != nil {
		return nil, err
	}

	extra := append([]string(nil), fileCfg.Tags...)
	for _, t := range ra.Tags {
		extra = append(extra, internal.SplitTags(t)...)
	}

	env, err := ra.resolver.Resolve(ctx, extra...)
	if err != nil {
		return nil, err
	}
	if ra.GOOS != "" || ra.GOARCH != "" {
		goos, goarch := env.GOOS, env.GOARCH
		if ra.GOOS != "" {
			goos = ra.GOOS
		}
		if ra.GOARCH != "" {
			goarch = ra.GOARCH
		}
		env = env.ForPlatform(goos, goarch)
	}
	slog.Debug("build configuration",
		slog.String("goos", env.GOOS),
		slog.String("goarch", env.GOARCH),
		slog.Any("tags", env.Tags),
	)

	return &buildContext{env: env, file: fileCfg, flags: env.Flags(), exclude: fileCfg.Exclude}, nil
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(NewRootArgs())
}

func newRootCmd(args *RootArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:               cmdName,
		Short:             cmdDesc,
		Long:              cmdLong,
		Example:           cmdExamples,
		PersistentPreRunE: setupLogging(args),
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	args.AddFlags(cmd)
	cmd.AddCommand(
		NewExpandCmd(args),
		NewCheckCmd(args),
		NewDiffCmd(args),
		NewExplainCmd(args),
		NewVersionCmd(),
	)
	cmd.AddCommand(NewGoCmds(args)...)

	bindEnvVars(cmd)

	return cmd
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, argv []string) int {
	return execute(ctx, NewRootCmd(), argv)
}

func execute(ctx context.Context, cmd *cobra.Command, argv []string) int {
	cmd.SetArgs(argv)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		if !errors.Is(err, errSilent) {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", cmdName, err)
		}
		return 1
	}
	return 0
}

func setupLogging(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		level, format := ra.LogLevel, ra.LogFormat
		if fileCfg, err := internal.LoadFileConfigFrom(ra.ConfigPath, "."); err == nil {
			if fileCfg.Log.Level != "" && !flagOrEnvSet(cmd, "log-level") {
				level = fileCfg.Log.Level
			}
			if fileCfg.Log.Format != "" && !flagOrEnvSet(cmd, "log-format") {
				format = fileCfg.Log.Format
			}
		}

		logHandler, err := log.CreateHandlerWithStrings(cmd.ErrOrStderr(), level, format)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		slog.SetDefault(slog.New(logHandler))

		return nil
	}
}

func flagOrEnvSet(cmd *cobra.Command, name string) bool {
	if cmd.Flags().Changed(name) {
		return true
	}
	_, ok := os.LookupEnv(flagToEnvName(name))
	return ok
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
