package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"compliance-monitor/internal/compliance"
)

type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

const ruleColumns = `rule_id, rule_name, description, target_type, parameter, operator, unit, default_threshold, allow_override, fix_button, fix_sql, is_active`

// UpsertRules writes catalog entries. Rules missing from the catalog are
// deactivated, never deleted, since applied rules may reference them. Target
// type, parameter and operator of a referenced rule cannot change.
func (r *Repository) UpsertRules(ctx context.Context, rules []compliance.Rule) error {
	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.ID)
		if err := checkRuleSemantics(ctx, tx, rule); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO rule_catalog (`+ruleColumns+`, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
			ON CONFLICT (rule_id) DO UPDATE SET
				rule_name=EXCLUDED.rule_name, description=EXCLUDED.description, target_type=EXCLUDED.target_type,
				parameter=EXCLUDED.parameter, operator=EXCLUDED.operator, unit=EXCLUDED.unit,
				default_threshold=EXCLUDED.default_threshold, allow_override=EXCLUDED.allow_override,
				fix_button=EXCLUDED.fix_button, fix_sql=EXCLUDED.fix_sql, is_active=EXCLUDED.is_active, updated_at=now()`,
			rule.ID, rule.Name, rule.Description, string(rule.TargetType), rule.Parameter, string(rule.Operator), rule.Unit,
			rule.DefaultThreshold, rule.AllowOverride, rule.FixButton, rule.FixSQL, rule.Active,
		)
		if err != nil {
			return fmt.Errorf("upsert rule %s: %w", rule.ID, err)
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE rule_catalog SET is_active=false, updated_at=now() WHERE is_active AND NOT (rule_id = ANY($1))`, ids); err != nil {
		return fmt.Errorf("retire rules: %w", err)
	}
	return tx.Commit(ctx)
}

func checkRuleSemantics(ctx context.Context, tx pgx.Tx, rule compliance.Rule) error {
	var targetType, parameter, operator string
	err := tx.QueryRow(ctx, `
		SELECT rc.target_type, rc.parameter, rc.operator
		FROM rule_catalog rc
		WHERE rc.rule_id=$1 AND EXISTS (SELECT 1 FROM applied_rules ar WHERE ar.rule_id = rc.rule_id)
		FOR UPDATE`, rule.ID).Scan(&targetType, &parameter, &operator)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load rule %s: %w", rule.ID, err)
	}
	if targetType != string(rule.TargetType) || parameter != rule.Parameter || operator != string(rule.Operator) {
		return fmt.Errorf("rule %s: target type, parameter or operator changed: %w", rule.ID, ErrRuleInUse)
	}
	return nil
}

func (r *Repository) ListRules(ctx context.Context, activeOnly bool) ([]compliance.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rule_catalog`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY rule_name`
	rows, err := r.Store.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []compliance.Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rule)
	}
	return results, rows.Err()
}

func (r *Repository) GetRule(ctx context.Context, id string) (compliance.Rule, error) {
	row := r.Store.Pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM rule_catalog WHERE rule_id=$1`, id)
	rule, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return compliance.Rule{}, ErrNotFound
	}
	return rule, err
}

func scanRule(row scanner) (compliance.Rule, error) {
	var rule compliance.Rule
	var targetType, operator string
	if err := row.Scan(&rule.ID, &rule.Name, &rule.Description, &targetType, &rule.Parameter, &operator, &rule.Unit,
		&rule.DefaultThreshold, &rule.AllowOverride, &rule.FixButton, &rule.FixSQL, &rule.Active); err != nil {
		return compliance.Rule{}, err
	}
	rule.TargetType = compliance.ObjectType(targetType)
	rule.Operator = compliance.Operator(operator)
	return rule, nil
}
