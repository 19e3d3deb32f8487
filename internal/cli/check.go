package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AeonDave/cfgmatch/internal"
)

type CheckArgs struct {
	*RootArgs
	Platforms []string
}

func NewCheckCmd(root *RootArgs) *cobra.Command {
	ca := &CheckArgs{RootArgs: root}

	cmd := &cobra.Command{
		Use:   "check [path]",
		Short: "Verify every invocation expands on each platform",
		Long: `Expand every //cfg:match invocation under path once per platform and report
syntax errors and exhaustive matches without a matching case. Platforms come
from --platform, then the "platforms" list of the config file, then the
current GOOS/GOARCH.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, ca, targetPath(args))
		},
	}
	cmd.Flags().StringArrayVarP(&ca.Platforms, "platform", "p", nil, "GOOS/GOARCH to check, repeatable")

	return cmd
}

func runCheck(cmd *cobra.Command, ca *CheckArgs, path string) error {
	bc, err := ca.resolve(cmd.Context(), path)
	if err != nil {
		return err
	}

	platforms := ca.Platforms
	if len(platforms) == 0 {
		platforms = bc.file.Platforms
	}
	if len(platforms) == 0 {
		platforms = []string{bc.env.GOOS + "/" + bc.env.GOARCH}
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, p := range platforms {
		goos, goarch, err := internal.ParsePlatform(p)
		if err != nil {
			return err
		}
		env := bc.env.ForPlatform(goos, goarch)
		cfg := internal.Config{Dir: path, Flags: env.Flags(), Exclude: bc.exclude, Logger: slog.Default()}

		var checkErr error
		files := 0
		if isFile(path) {
			fr := internal.ExpandPath(path, cfg)
			files, checkErr = 1, fr.Err
		} else {
			report, err := internal.RunCodegen(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			report.Walk(func(internal.FileResult) { files++ })
			checkErr = report.Err()
		}

		if checkErr != nil {
			failed++
			_, _ = fmt.Fprintf(out, "FAIL\t%s\n", p)
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), checkErr)
			continue
		}
		_, _ = fmt.Fprintf(out, "ok\t%s\t%d file(s)\n", p, files)
	}

	if failed > 0 {
		return errSilent
	}
	return nil
}
