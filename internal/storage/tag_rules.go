package storage

import (
	"context"
	"fmt"

	"compliance-monitor/internal/compliance"
)

func (r *Repository) ListTagRules(ctx context.Context, activeOnly bool) ([]compliance.TagRule, error) {
	query := `SELECT applied_tag_rule_id, tag_name, object_type, description, applied_at, applied_by, is_active FROM tag_rules`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY object_type, tag_name`
	rows, err := r.Store.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []compliance.TagRule{}
	for rows.Next() {
		rule, err := scanTagRule(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rule)
	}
	return results, rows.Err()
}

func (r *Repository) ApplyTagRule(ctx context.Context, rule compliance.TagRule) (compliance.TagRule, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO tag_rules (tag_name, object_type, description, applied_by, is_active, applied_at)
		VALUES ($1,$2,$3,$4,true,now())
		RETURNING applied_tag_rule_id, tag_name, object_type, description, applied_at, applied_by, is_active`,
		rule.TagName, string(rule.ObjectType), rule.Description, rule.AppliedBy,
	)
	saved, err := scanTagRule(row)
	if err != nil {
		if isUniqueViolation(err) {
			return compliance.TagRule{}, compliance.DuplicateError(fmt.Sprintf("tag %s is already required on %s objects", rule.TagName, rule.ObjectType), compliance.MissingTagRuleID, rule.ObjectType, "")
		}
		return compliance.TagRule{}, fmt.Errorf("insert tag rule: %w", err)
	}
	return saved, nil
}

func (r *Repository) DeactivateTagRule(ctx context.Context, id int64) error {
	tag, err := r.Store.Pool.Exec(ctx, `UPDATE tag_rules SET is_active=false WHERE applied_tag_rule_id=$1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTagRule(row scanner) (compliance.TagRule, error) {
	var rule compliance.TagRule
	var objectType string
	if err := row.Scan(&rule.ID, &rule.TagName, &objectType, &rule.Description, &rule.AppliedAt, &rule.AppliedBy, &rule.Active); err != nil {
		return compliance.TagRule{}, err
	}
	rule.ObjectType = compliance.ObjectType(objectType)
	return rule, nil
}
