package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AeonDave/cfgmatch/internal"
)

type ExpandArgs struct {
	*RootArgs
	Output string
}

func NewExpandCmd(root *RootArgs) *cobra.Command {
	ea := &ExpandArgs{RootArgs: root}

	cmd := &cobra.Command{
		Use:   "expand [path]",
		Short: "Write expanded sources",
		Long: `Expand every //cfg:match invocation under path for the selected build
configuration. A single file is written to stdout unless --output is set; a
directory requires --output and is mirrored there. Sources are never modified.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(cmd, ea, targetPath(args))
		},
	}
	cmd.Flags().StringVarP(&ea.Output, "output", "o", "", "Output file or directory")

	return cmd
}

func runExpand(cmd *cobra.Command, ea *ExpandArgs, path string) error {
	bc, err := ea.resolve(cmd.Context(), path)
	if err != nil {
		return err
	}
	cfg := internal.Config{Dir: path, Flags: bc.flags, Exclude: bc.exclude, Logger: slog.Default()}

	if isFile(path) {
		fr := internal.ExpandPath(path, cfg)
		if fr.Err != nil {
			return reportErr(cmd.ErrOrStderr(), fr.Err)
		}
		if ea.Output == "" {
			_, err := cmd.OutOrStdout().Write(fr.Result.Source)
			return err
		}
		return os.WriteFile(ea.Output, fr.Result.Source, 0o644)
	}

	if ea.Output == "" {
		return fmt.Errorf("expand %s: --output is required for a directory", path)
	}
	if inside(ea.Output, path) {
		return fmt.Errorf("expand %s: output %s must not be inside the source tree", path, ea.Output)
	}

	report, err := internal.RunCodegen(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if err := report.Err(); err != nil {
		return reportErr(cmd.ErrOrStderr(), err)
	}

	n, err := internal.WriteReport(report, ea.Output)
	if err != nil {
		return err
	}
	slog.Info("expansion written", slog.Int("files", n), slog.String("output", ea.Output))

	return nil
}

// reportErr prints diagnostics one per line and returns errSilent.
func reportErr(w io.Writer, err error) error {
	_, _ = fmt.Fprintln(w, err)
	return errSilent
}

// targetPath turns the optional positional argument into a path. A go-style
// "/..." suffix is accepted; directories are always walked recursively.
func targetPath(args []string) string {
	if len(args) == 0 {
		return "."
	}
	p := strings.TrimSuffix(args[0], "...")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "."
	}
	return p
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirOf(path string) string {
	return filepath.Dir(path)
}

func inside(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
