package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"compliance-monitor/internal/catalog"
	"compliance-monitor/internal/logging"
)

type rootOptions struct {
	logLevel    string
	catalogPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "compliancectl",
		Short:        "Evaluate warehouse and data retention compliance offline",
		SilenceUsage: true,
		Long: `compliancectl evaluates an inventory snapshot file against the rule catalog
and renders reports or remediation SQL without a running server.`,
		Example: `  # Show non-compliant warehouses
  compliancectl evaluate warehouses --snapshot snapshot.yaml --status non-compliant

  # Print the fix script for table retention
  compliancectl fix-sql retention --snapshot snapshot.yaml --object-type TABLE

  # Check a custom catalog
  compliancectl catalog validate catalog.yaml`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(slog.New(logging.NewHandler(os.Stdout, cmd.ErrOrStderr(), opts.logLevel, "text")))
		},
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&opts.catalogPath, "catalog", "", "Rule catalog YAML file (built-in catalog when empty)")

	cmd.AddCommand(
		newEvaluateCommand(opts),
		newFixSQLCommand(opts),
		newCatalogCommand(opts),
	)
	return cmd
}

func (o *rootOptions) loadCatalog() (catalog.Catalog, error) {
	cat, err := catalog.Load(o.catalogPath)
	if err != nil {
		return catalog.Catalog{}, err
	}
	slog.Debug("catalog loaded", "rules", len(cat.Rules), "path", o.catalogPath)
	return cat, nil
}
