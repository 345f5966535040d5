package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"compliance-monitor/internal/catalog"
)

func newCatalogCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the rule catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the catalog rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := root.loadCatalog()
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Rule", "Target", "Expectation", "Override", "Fix SQL", "Active"})
			for _, r := range cat.Rules {
				expectation := r.Parameter
				if r.DefaultThreshold != nil {
					expectation += " " + r.Operator.Describe(*r.DefaultThreshold, r.Unit)
				}
				tw.AppendRow(table.Row{r.ID, cat.Applicability.TargetFor(r), expectation, r.AllowOverride, r.FixSQL, r.Active})
			}
			tw.Render()
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Check a catalog file, or the --catalog file, for errors",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cat catalog.Catalog
				err error
			)
			if len(args) == 1 {
				var data []byte
				if data, err = os.ReadFile(args[0]); err != nil {
					return err
				}
				cat, err = catalog.Parse(data)
			} else {
				cat, err = root.loadCatalog()
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "catalog ok: %d rules, %d active\n", len(cat.Rules), len(cat.ActiveRules()))
			return err
		},
	})
	return cmd
}
