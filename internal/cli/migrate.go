package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"carepay/internal/platform/metrics"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			handle, version, err := openMigrated(cmd.Context(), rootOpts.Config, metrics.New())
			if err != nil {
				return err
			}
			defer handle.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}
