package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"compliance-monitor/internal/compliance"
)

const appliedRuleSelect = `
	SELECT ar.applied_rule_id, ar.threshold_value, ar.scope, ar.tag_name, ar.tag_value, ar.applied_at, ar.applied_by, ar.is_active,
	       cr.rule_id, cr.rule_name, cr.description, cr.target_type, cr.parameter, cr.operator, cr.unit,
	       cr.default_threshold, cr.allow_override, cr.fix_button, cr.fix_sql, cr.is_active
	FROM applied_rules ar
	JOIN rule_catalog cr ON ar.rule_id = cr.rule_id`

func (r *Repository) ListAppliedRules(ctx context.Context, activeOnly bool) ([]compliance.AppliedRule, error) {
	query := appliedRuleSelect
	if activeOnly {
		query += ` WHERE ar.is_active`
	}
	query += ` ORDER BY ar.applied_at DESC`
	rows, err := r.Store.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []compliance.AppliedRule{}
	for rows.Next() {
		rule, err := scanAppliedRule(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rule)
	}
	return results, rows.Err()
}

func (r *Repository) GetAppliedRule(ctx context.Context, id int64) (compliance.AppliedRule, error) {
	rule, err := scanAppliedRule(r.Store.Pool.QueryRow(ctx, appliedRuleSelect+` WHERE ar.applied_rule_id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return compliance.AppliedRule{}, ErrNotFound
	}
	return rule, err
}

// ApplyRule deactivates the superseded rules and inserts the new one in a single
// transaction. Rows matching the same rule, scope and tag are deactivated as well
// so the active combination stays unique.
func (r *Repository) ApplyRule(ctx context.Context, rule compliance.AppliedRule, supersede []int64) (compliance.AppliedRule, error) {
	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return compliance.AppliedRule{}, err
	}
	defer tx.Rollback(ctx)

	if supersede == nil {
		supersede = []int64{}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE applied_rules SET is_active=false
		WHERE is_active AND (applied_rule_id = ANY($1)
			OR (rule_id=$2 AND scope=$3 AND tag_name IS NOT DISTINCT FROM $4 AND tag_value IS NOT DISTINCT FROM $5))`,
		supersede, rule.Rule.ID, string(rule.Scope), rule.TagName, rule.TagValue,
	); err != nil {
		return compliance.AppliedRule{}, fmt.Errorf("deactivate superseded rules: %w", err)
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO applied_rules (rule_id, threshold_value, scope, tag_name, tag_value, applied_by, is_active, applied_at)
		VALUES ($1,$2,$3,$4,$5,$6,true,now())
		RETURNING applied_rule_id`,
		rule.Rule.ID, rule.Threshold, string(rule.Scope), rule.TagName, rule.TagValue, rule.AppliedBy,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return compliance.AppliedRule{}, compliance.DuplicateError("rule is already applied with this scope", rule.Rule.ID, "", "")
		}
		return compliance.AppliedRule{}, fmt.Errorf("insert applied rule: %w", err)
	}
	saved, err := scanAppliedRule(tx.QueryRow(ctx, appliedRuleSelect+` WHERE ar.applied_rule_id=$1`, id))
	if err != nil {
		return compliance.AppliedRule{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return compliance.AppliedRule{}, err
	}
	return saved, nil
}

func (r *Repository) DeactivateAppliedRule(ctx context.Context, id int64) error {
	tag, err := r.Store.Pool.Exec(ctx, `UPDATE applied_rules SET is_active=false WHERE applied_rule_id=$1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAppliedRule(row scanner) (compliance.AppliedRule, error) {
	var ar compliance.AppliedRule
	var scope, targetType, operator string
	if err := row.Scan(&ar.ID, &ar.Threshold, &scope, &ar.TagName, &ar.TagValue, &ar.AppliedAt, &ar.AppliedBy, &ar.Active,
		&ar.Rule.ID, &ar.Rule.Name, &ar.Rule.Description, &targetType, &ar.Rule.Parameter, &operator, &ar.Rule.Unit,
		&ar.Rule.DefaultThreshold, &ar.Rule.AllowOverride, &ar.Rule.FixButton, &ar.Rule.FixSQL, &ar.Rule.Active); err != nil {
		return compliance.AppliedRule{}, err
	}
	ar.Scope = compliance.Scope(scope)
	ar.Rule.TargetType = compliance.ObjectType(targetType)
	ar.Rule.Operator = compliance.Operator(operator)
	return ar, nil
}
