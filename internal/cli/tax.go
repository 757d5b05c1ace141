package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"carepay/internal/domain/tax"
)

func NewTaxCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tax",
		Short: "Inspect and maintain the per-year tax tables",
	}
	cmd.AddCommand(newTaxListCommand(rootOpts))
	cmd.AddCommand(newTaxUpsertCommand(rootOpts))
	return cmd
}

func newTaxListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored tax years",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openTaxStore(cmd.Context(), rootOpts.Config)
			if err != nil {
				return err
			}
			defer closeFn()

			configs, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			return writeTaxTable(cmd.OutOrStdout(), configs)
		},
	}
}

func writeTaxTable(w io.Writer, configs []tax.Configuration) error {
	p := message.NewPrinter(language.AmericanEnglish)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "YEAR\tSTATE\tVERSION\tSS WAGE BASE\tFUTA WAGE BASE\tSUI WAGE BASE\tMIN WAGE")
	for _, cfg := range configs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			cfg.TaxYear,
			cfg.StateCode,
			cfg.Version,
			wageBase(p, cfg.SocialSecurityWageBase),
			wageBase(p, cfg.FUTAWageBase),
			wageBase(p, cfg.SUIWageBase),
			cfg.MinimumWage.StringFixed(2),
		)
	}
	return tw.Flush()
}

func wageBase(p *message.Printer, base decimal.Decimal) string {
	if base.IsZero() {
		return "uncapped"
	}
	return p.Sprintf("$%d", base.IntPart())
}

func newTaxUpsertCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Insert or replace tax years from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configs, err := tax.LoadSeed(file)
			if err != nil {
				return err
			}
			store, closeFn, err := openTaxStore(cmd.Context(), rootOpts.Config)
			if err != nil {
				return err
			}
			defer closeFn()

			for _, cfg := range configs {
				saved, err := store.UpsertYear(cmd.Context(), cfg)
				if err != nil {
					return fmt.Errorf("tax year %d: %w", cfg.TaxYear, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tax year %d saved (version %s)\n", saved.TaxYear, saved.Version)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with one or more tax years")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
