package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"compliance-monitor/internal/compliance"
)

// LatestWarehouses returns the most recent captured row per warehouse name.
func (r *Repository) LatestWarehouses(ctx context.Context) ([]compliance.Warehouse, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT DISTINCT ON (name)
			name, type, size, owner, auto_suspend, statement_timeout_in_seconds, statement_queued_timeout_in_seconds,
			min_cluster_count, max_cluster_count, scaling_policy, max_concurrency_level, comment, capture_timestamp
		FROM warehouse_details
		ORDER BY name, capture_timestamp DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []compliance.Warehouse{}
	for rows.Next() {
		var w compliance.Warehouse
		if err := rows.Scan(&w.Name, &w.Type, &w.Size, &w.Owner, &w.AutoSuspend, &w.StatementTimeoutSeconds, &w.StatementQueuedTimeoutSeconds,
			&w.MinClusterCount, &w.MaxClusterCount, &w.ScalingPolicy, &w.MaxConcurrencyLevel, &w.Comment, &w.CaptureTimestamp); err != nil {
			return nil, err
		}
		results = append(results, w)
	}
	return results, rows.Err()
}

// LatestRetentionObjects returns the most recent captured row per database, schema
// or table, optionally restricted to one object type.
func (r *Repository) LatestRetentionObjects(ctx context.Context, objectType compliance.ObjectType) ([]compliance.RetentionObject, error) {
	query := `
		SELECT DISTINCT ON (object_type, database_name, schema_name, table_name)
			object_type, database_name, schema_name, table_name, table_type, data_retention_time_in_days,
			owner, row_count, bytes, comment, capture_timestamp
		FROM database_retention_details`
	args := []any{}
	if objectType != "" {
		query += ` WHERE object_type=$1`
		args = append(args, string(objectType))
	}
	query += ` ORDER BY object_type, database_name, schema_name, table_name, capture_timestamp DESC`
	rows, err := r.Store.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []compliance.RetentionObject{}
	for rows.Next() {
		var o compliance.RetentionObject
		var t string
		if err := rows.Scan(&t, &o.Database, &o.Schema, &o.Table, &o.TableType, &o.RetentionDays,
			&o.Owner, &o.RowCount, &o.Bytes, &o.Comment, &o.CaptureTimestamp); err != nil {
			return nil, err
		}
		o.ObjectType = compliance.ObjectType(t)
		results = append(results, o)
	}
	return results, rows.Err()
}

// LatestTagAssignments returns the tags of the most recent capture of every
// source. A source whose latest capture holds no tags contributes nothing.
func (r *Repository) LatestTagAssignments(ctx context.Context) ([]compliance.TagAssignment, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT t.object_type, t.object_name, t.tag_name, t.tag_value
		FROM tag_references t
		JOIN (SELECT source, max(captured_at) AS captured_at FROM inventory_captures GROUP BY source) c
			ON c.source = t.source AND c.captured_at = t.capture_timestamp
		ORDER BY t.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []compliance.TagAssignment{}
	for rows.Next() {
		var a compliance.TagAssignment
		var t string
		if err := rows.Scan(&t, &a.ObjectName, &a.TagName, &a.TagValue); err != nil {
			return nil, err
		}
		a.ObjectType = compliance.ObjectType(t)
		results = append(results, a)
	}
	return results, rows.Err()
}

// InsertSnapshot copies a captured inventory into the snapshot tables in one transaction.
func (r *Repository) InsertSnapshot(ctx context.Context, snap Snapshot) error {
	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	warehouses := make([][]any, 0, len(snap.Warehouses))
	for _, w := range snap.Warehouses {
		warehouses = append(warehouses, []any{snap.Source, w.Name, w.Type, w.Size, w.Owner, w.AutoSuspend, w.StatementTimeoutSeconds,
			w.StatementQueuedTimeoutSeconds, w.MinClusterCount, w.MaxClusterCount, w.ScalingPolicy, w.MaxConcurrencyLevel, w.Comment, snap.CapturedAt})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"warehouse_details"}, []string{
		"source", "name", "type", "size", "owner", "auto_suspend", "statement_timeout_in_seconds",
		"statement_queued_timeout_in_seconds", "min_cluster_count", "max_cluster_count", "scaling_policy", "max_concurrency_level", "comment", "capture_timestamp",
	}, pgx.CopyFromRows(warehouses)); err != nil {
		return fmt.Errorf("copy warehouses: %w", err)
	}

	retention := make([][]any, 0, len(snap.RetentionObjects))
	for _, o := range snap.RetentionObjects {
		retention = append(retention, []any{snap.Source, string(o.ObjectType), o.Database, o.Schema, o.Table, o.TableType,
			o.RetentionDays, o.Owner, o.RowCount, o.Bytes, o.Comment, snap.CapturedAt})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"database_retention_details"}, []string{
		"source", "object_type", "database_name", "schema_name", "table_name", "table_type",
		"data_retention_time_in_days", "owner", "row_count", "bytes", "comment", "capture_timestamp",
	}, pgx.CopyFromRows(retention)); err != nil {
		return fmt.Errorf("copy retention objects: %w", err)
	}

	tags := make([][]any, 0, len(snap.Tags))
	for _, a := range snap.Tags {
		tags = append(tags, []any{snap.Source, string(a.ObjectType), a.ObjectName, a.TagName, a.TagValue, snap.CapturedAt})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"tag_references"}, []string{
		"source", "object_type", "object_name", "tag_name", "tag_value", "capture_timestamp",
	}, pgx.CopyFromRows(tags)); err != nil {
		return fmt.Errorf("copy tags: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO inventory_captures (source, captured_at) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		snap.Source, snap.CapturedAt); err != nil {
		return fmt.Errorf("record capture: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) RecordRefreshRun(ctx context.Context, run RefreshRun) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO inventory_refresh_runs (run_id, source, trigger, status, warehouses, retention_objects, tags, error_message, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (run_id) DO UPDATE SET status=EXCLUDED.status, warehouses=EXCLUDED.warehouses,
			retention_objects=EXCLUDED.retention_objects, tags=EXCLUDED.tags, error_message=EXCLUDED.error_message,
			completed_at=EXCLUDED.completed_at`,
		run.RunID, run.Source, run.Trigger, run.Status, run.Warehouses, run.RetentionObjects, run.Tags, run.ErrorMessage, run.StartedAt, run.CompletedAt,
	)
	return err
}

func (r *Repository) ListRefreshRuns(ctx context.Context, source string, limit int) ([]RefreshRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT run_id, source, trigger, status, warehouses, retention_objects, tags, error_message, started_at, completed_at FROM inventory_refresh_runs`
	args := []any{}
	if source != "" {
		query += ` WHERE source=$1`
		args = append(args, source)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, len(args))
	rows, err := r.Store.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []RefreshRun{}
	for rows.Next() {
		var run RefreshRun
		if err := rows.Scan(&run.RunID, &run.Source, &run.Trigger, &run.Status, &run.Warehouses, &run.RetentionObjects, &run.Tags,
			&run.ErrorMessage, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		results = append(results, run)
	}
	return results, rows.Err()
}
