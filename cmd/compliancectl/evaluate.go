package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"compliance-monitor/internal/compliance"
	"compliance-monitor/internal/metrics"
	"compliance-monitor/internal/service"
)

type evaluateOptions struct {
	snapshotPath   string
	objectType     string
	status         string
	search         string
	output         string
	snapshotSchema string
	timeout        int64
}

var evaluations = []string{metrics.EvaluationWarehouses, metrics.EvaluationRetention, metrics.EvaluationTags}

func (o *evaluateOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.snapshotPath, "snapshot", "", "Snapshot YAML file to evaluate")
	cmd.Flags().StringVar(&o.objectType, "object-type", "", "Limit to WAREHOUSE, DATABASE, SCHEMA or TABLE")
	cmd.Flags().StringVar(&o.status, "status", "all", "all, compliant, non-compliant, whitelisted or non-compliant-first")
	cmd.Flags().StringVar(&o.search, "search", "", "Case-insensitive match on object, owner, rule or tag")
	_ = cmd.MarkFlagRequired("snapshot")
}

func (o *evaluateOptions) filter() (compliance.Filter, compliance.ObjectType, error) {
	status, ok := compliance.ParseStatusFilter(o.status)
	if !ok {
		return compliance.Filter{}, "", fmt.Errorf("unknown status %q", o.status)
	}
	var objectType compliance.ObjectType
	if strings.TrimSpace(o.objectType) != "" {
		t, ok := compliance.ParseObjectType(o.objectType)
		if !ok {
			return compliance.Filter{}, "", fmt.Errorf("unknown object type %q", o.objectType)
		}
		objectType = t
	}
	return compliance.Filter{Status: status, Search: o.search}, objectType, nil
}

func (o *evaluateOptions) open(cmd *cobra.Command, root *rootOptions) (*service.Service, error) {
	cat, err := root.loadCatalog()
	if err != nil {
		return nil, err
	}
	snap, err := loadSnapshot(o.snapshotPath)
	if err != nil {
		return nil, err
	}
	generator := compliance.NewGenerator()
	if o.snapshotSchema != "" {
		generator.SnapshotSchema = o.snapshotSchema
	}
	if o.timeout > 0 {
		generator.DefaultStatementTimeout = o.timeout
	}
	return openSnapshot(cmd.Context(), cat, snap, service.Options{
		Evaluator: compliance.NewEvaluator(cat.Applicability),
		Generator: generator,
	})
}

func validEvaluation(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	for _, e := range evaluations {
		if args[0] == e {
			return nil
		}
	}
	return fmt.Errorf("unknown evaluation %q, use %s", args[0], strings.Join(evaluations, ", "))
}

func newEvaluateCommand(root *rootOptions) *cobra.Command {
	opts := &evaluateOptions{}
	cmd := &cobra.Command{
		Use:       "evaluate <warehouses|retention|tags>",
		Short:     "Evaluate a snapshot and print the compliance report",
		Args:      validEvaluation,
		ValidArgs: evaluations,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, objectType, err := opts.filter()
			if err != nil {
				return err
			}
			svc, err := opts.open(cmd, root)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			switch args[0] {
			case metrics.EvaluationWarehouses:
				report, err := svc.WarehouseCompliance(ctx, f)
				if err != nil {
					return err
				}
				return writeReport(out, opts.output, report, describeViolations)
			case metrics.EvaluationRetention:
				report, err := svc.RetentionCompliance(ctx, objectType, f)
				if err != nil {
					return err
				}
				return writeReport(out, opts.output, report, describeViolations)
			default:
				report, err := svc.TagCompliance(ctx, objectType, f)
				if err != nil {
					return err
				}
				return writeReport(out, opts.output, report, describeMissingTags)
			}
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format: table or json")
	return cmd
}

func newFixSQLCommand(root *rootOptions) *cobra.Command {
	opts := &evaluateOptions{}
	cmd := &cobra.Command{
		Use:       "fix-sql <warehouses|retention|tags>",
		Short:     "Print the remediation script for the selected violations",
		Args:      validEvaluation,
		ValidArgs: evaluations,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, objectType, err := opts.filter()
			if err != nil {
				return err
			}
			svc, err := opts.open(cmd, root)
			if err != nil {
				return err
			}
			script, err := svc.FixScript(cmd.Context(), args[0], objectType, f)
			if err != nil {
				return err
			}
			if script == "" {
				return nil
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), script)
			return err
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.snapshotSchema, "snapshot-schema", "", "Schema named in snapshot UPDATE statements")
	cmd.Flags().Int64Var(&opts.timeout, "default-statement-timeout", 0, "Timeout written when a zero statement timeout is fixed")
	return cmd
}

func writeReport[T compliance.Result](w io.Writer, format string, report service.Report[T], describe func(T) string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Type", "Object", "Status", "Violations"})
	for _, r := range report.Results {
		tw.AppendRow(table.Row{r.Kind(), r.Name(), statusOf(r), describe(r)})
	}
	s := report.Summary
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d objects", s.Total), fmt.Sprintf("%.1f%% compliant", s.ComplianceRate), fmt.Sprintf("%d active, %d whitelisted", s.ActiveViolations, s.WhitelistedViolations)})
	tw.Render()
	return nil
}

func statusOf[T compliance.Result](r T) string {
	switch {
	case r.NoRulesApplicable():
		return "NO RULES"
	case r.NonCompliant():
		return "NON-COMPLIANT"
	case len(r.WhitelistedViolations()) > 0:
		return "WHITELISTED"
	default:
		return "COMPLIANT"
	}
}

func describeViolations(r compliance.ObjectCompliance) string {
	lines := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		current := "unset"
		if v.CurrentValue != nil {
			current = fmt.Sprintf("%g", *v.CurrentValue)
		}
		line := fmt.Sprintf("%s: %s is %s, want %s", v.RuleID, v.Parameter, current, v.Operator.Describe(v.Threshold, v.Unit))
		if v.Whitelisted {
			line += " (whitelisted)"
		}
		lines = append(lines, text.WrapSoft(line, 80))
	}
	return strings.Join(lines, "\n")
}

func describeMissingTags(r compliance.ObjectTagCompliance) string {
	lines := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		line := "missing " + v.TagName
		if v.Whitelisted {
			line += " (whitelisted)"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
