package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aymanbagabas/go-udiff"
	"github.com/spf13/cobra"

	"github.com/AeonDave/cfgmatch/internal"
)

func NewDiffCmd(root *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "diff [path]",
		Short: "Show what expansion changes, as a unified diff",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, root, targetPath(args))
		},
	}
}

func runDiff(cmd *cobra.Command, ra *RootArgs, path string) error {
	bc, err := ra.resolve(cmd.Context(), path)
	if err != nil {
		return err
	}
	cfg := internal.Config{Dir: path, Flags: bc.flags, Exclude: bc.exclude, Logger: slog.Default()}

	var results []internal.FileResult
	if isFile(path) {
		results = append(results, internal.ExpandPath(path, cfg))
	} else {
		report, err := internal.RunCodegen(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		report.Walk(func(fr internal.FileResult) { results = append(results, fr) })
	}

	out := cmd.OutOrStdout()
	var errs []error
	for _, fr := range results {
		if fr.Err != nil {
			errs = append(errs, fr.Err)
			continue
		}
		if !fr.Result.Changed {
			continue
		}
		label := filepath.ToSlash(fr.Rel)
		_, _ = fmt.Fprint(out, udiff.Unified("a/"+label, "b/"+label,
			string(fr.Result.Original), string(fr.Result.Source)))
	}

	if len(errs) > 0 {
		for _, err := range errs {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
		return errSilent
	}
	return nil
}
