package storage

import (
	"context"
	"fmt"

	"compliance-monitor/internal/compliance"
)

const whitelistSelect = `
	SELECT w.whitelist_id, w.rule_id, coalesce(cr.rule_name, ''), w.applied_rule_id, w.object_type, w.object_name, w.tag_name,
	       w.reason, w.whitelisted_by, w.whitelisted_at, w.is_active
	FROM whitelist w
	LEFT JOIN rule_catalog cr ON cr.rule_id = w.rule_id`

// ListWhitelist returns active entries, optionally restricted to one object type.
func (r *Repository) ListWhitelist(ctx context.Context, objectType compliance.ObjectType) ([]compliance.WhitelistEntry, error) {
	query := whitelistSelect + ` WHERE w.is_active`
	args := []any{}
	if objectType != "" {
		query += ` AND w.object_type=$1`
		args = append(args, string(objectType))
	}
	query += ` ORDER BY w.whitelisted_at DESC`
	rows, err := r.Store.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []compliance.WhitelistEntry{}
	for rows.Next() {
		entry, err := scanWhitelistEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	return results, rows.Err()
}

func (r *Repository) AddWhitelistEntry(ctx context.Context, entry compliance.WhitelistEntry) (compliance.WhitelistEntry, error) {
	var id int64
	err := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO whitelist (rule_id, applied_rule_id, object_type, object_name, tag_name, reason, whitelisted_by, is_active, whitelisted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,true,now())
		RETURNING whitelist_id`,
		entry.RuleID, entry.AppliedRuleID, string(entry.ObjectType), entry.ObjectName, entry.TagName, entry.Reason, entry.WhitelistedBy,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return compliance.WhitelistEntry{}, compliance.DuplicateError("violation is already whitelisted", entry.RuleID, entry.ObjectType, entry.ObjectName)
		}
		return compliance.WhitelistEntry{}, fmt.Errorf("insert whitelist entry: %w", err)
	}
	return scanWhitelistEntry(r.Store.Pool.QueryRow(ctx, whitelistSelect+` WHERE w.whitelist_id=$1`, id))
}

func (r *Repository) RemoveWhitelistEntry(ctx context.Context, id int64) error {
	tag, err := r.Store.Pool.Exec(ctx, `UPDATE whitelist SET is_active=false WHERE whitelist_id=$1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveWhitelistEntries deactivates several entries and reports how many were active.
func (r *Repository) RemoveWhitelistEntries(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.Store.Pool.Exec(ctx, `UPDATE whitelist SET is_active=false WHERE whitelist_id = ANY($1) AND is_active`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanWhitelistEntry(row scanner) (compliance.WhitelistEntry, error) {
	var e compliance.WhitelistEntry
	var objectType string
	if err := row.Scan(&e.ID, &e.RuleID, &e.RuleName, &e.AppliedRuleID, &objectType, &e.ObjectName, &e.TagName,
		&e.Reason, &e.WhitelistedBy, &e.WhitelistedAt, &e.Active); err != nil {
		return compliance.WhitelistEntry{}, err
	}
	e.ObjectType = compliance.ObjectType(objectType)
	return e, nil
}
