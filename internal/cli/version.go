package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AeonDave/cfgmatch/internal/version"
)

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cfgmatch version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (%s)\n",
				cmdName, version.GetVersion(), version.GoVersion)
			return err
		},
	}
}
