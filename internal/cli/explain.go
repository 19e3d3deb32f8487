package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AeonDave/cfgmatch/internal"
	"github.com/AeonDave/cfgmatch/internal/selector"
)

func NewExplainCmd(root *RootArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "explain [path]",
		Short: "Show each invocation, its effective predicates and the selected arm",
		Long: `For every //cfg:match invocation, print each arm with its effective
predicate, the form it is guarded by after mutual exclusion:

  case_i && !(case_0 || ... || case_i-1)

The selected arm is marked with "*". Arms shadowed by an earlier, broader
case can never be selected and show up here.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, root, targetPath(args))
		},
	}
}

func runExplain(cmd *cobra.Command, ra *RootArgs, path string) error {
	bc, err := ra.resolve(cmd.Context(), path)
	if err != nil {
		return err
	}
	cfg := internal.Config{Dir: path, Flags: bc.flags, Exclude: bc.exclude, Logger: slog.Default()}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "flags: %s\n", bc.flags)

	var results []internal.FileResult
	if isFile(path) {
		results = append(results, internal.ExpandPath(path, cfg))
	} else {
		report, err := internal.RunCodegen(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if report.Module != "" {
			_, _ = fmt.Fprintf(out, "module: %s\n", report.Module)
		}
		report.Walk(func(fr internal.FileResult) { results = append(results, fr) })
	}

	failed := false
	for _, fr := range results {
		if fr.Err != nil {
			failed = true
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), fr.Err)
			continue
		}
		for _, sel := range fr.Result.Selections {
			writeSelection(out, fr.Rel, sel)
		}
	}

	if failed {
		return errSilent
	}
	return nil
}

func writeSelection(w io.Writer, rel string, sel internal.Selection) {
	inv := sel.Invocation
	indent := strings.Repeat("  ", sel.Depth)
	_, _ = fmt.Fprintf(w, "%s%s:%d: %s match\n", indent, rel, inv.Pos.Line, inv.Kind())

	effective := selector.EffectiveAll(inv.Predicates())
	for i, arm := range inv.Arms {
		mark := "-"
		if arm == sel.Arm {
			mark = "*"
		}
		label := "case " + arm.Source
		eff := effective[i]
		if arm.Default {
			label = "default"
			eff = effective[len(effective)-1]
		}
		_, _ = fmt.Fprintf(w, "%s  %s %-30s => %s\n", indent, mark, label, selector.String(eff))
	}
}
