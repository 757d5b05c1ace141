package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"carepay/internal/platform/keystore"
)

func NewKeysCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the field encryption key",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify OS secure storage and unlock the field key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			store := keystore.New(cfg.KeyDir, cfg.KeyringService, rootOpts.KeyBackend)
			if err := store.Available(); err != nil {
				return err
			}
			if _, err := store.GetOrCreateKey(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "secure storage available, field key sealed at %s\n", store.SealedPath())
			return nil
		},
	})
	return cmd
}
