// file: connector.go
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"compliance-monitor/internal/compliance"
)

const (
	defaultSchema = "data_schema"

	warehouseTable = "warehouse_details"
	retentionTable = "database_retention_details"
	tagTable       = "tag_references"
)

// Reader reads the most recent inventory snapshot from a monitoring database.
type Reader interface {
	TestConnection(ctx context.Context) error

	Warehouses(ctx context.Context) ([]compliance.Warehouse, error)

	RetentionObjects(ctx context.Context) ([]compliance.RetentionObject, error)

	TagAssignments(ctx context.Context) ([]compliance.TagAssignment, error)

	Close() error
}

type ConnectionConfig struct {
	Type     string // mysql | postgres | mssql
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Schema holds the monitoring tables; data_schema when empty.
	Schema  string
	SSLMode string
}

var (
	warehouseColumns = []string{
		"name", "type", "size", "owner", "auto_suspend", "statement_timeout_in_seconds",
		"statement_queued_timeout_in_seconds", "min_cluster_count", "max_cluster_count",
		"scaling_policy", "max_concurrency_level", "comment", "capture_timestamp",
	}
	retentionColumns = []string{
		"object_type", "database_name", "schema_name", "table_name", "table_type",
		"data_retention_time_in_days", "owner", "row_count", "bytes", "comment", "capture_timestamp",
	}
	tagColumns = []string{"object_type", "object_name", "tag_name", "tag_value", "capture_timestamp"}
)

type baseConnector struct {
	cfg   ConnectionConfig
	db    *sql.DB
	quote func(string) string
}

func (b *baseConnector) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *baseConnector) table(name string) (string, error) {
	schema := strings.TrimSpace(b.cfg.Schema)
	if schema == "" {
		schema = defaultSchema
	}
	quoted, _, err := quoteQualified(schema+"."+name, 3, b.quote)
	return quoted, err
}

// latestQuery selects the newest row per partition. Window functions are
// available on every supported engine.
func (b *baseConnector) latestQuery(table string, columns, partition []string) (string, error) {
	qualified, err := b.table(table)
	if err != nil {
		return "", err
	}
	cols, err := quoteList(columns, b.quote)
	if err != nil {
		return "", err
	}
	parts, err := quoteList(partition, b.quote)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"SELECT %s FROM (SELECT %s, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s DESC) AS rn FROM %s) latest WHERE rn = 1 ORDER BY %s",
		cols, cols, parts, b.quote("capture_timestamp"), qualified, parts,
	), nil
}

// latestCaptureQuery selects only the rows of the newest capture, so rows
// absent from it are treated as gone.
func (b *baseConnector) latestCaptureQuery(table string, columns, order []string) (string, error) {
	qualified, err := b.table(table)
	if err != nil {
		return "", err
	}
	cols, err := quoteList(columns, b.quote)
	if err != nil {
		return "", err
	}
	sorted, err := quoteList(order, b.quote)
	if err != nil {
		return "", err
	}
	ts := b.quote("capture_timestamp")
	return fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = (SELECT MAX(%s) FROM %s) ORDER BY %s",
		cols, qualified, ts, ts, qualified, sorted,
	), nil
}

func (b *baseConnector) Warehouses(ctx context.Context) ([]compliance.Warehouse, error) {
	query, err := b.latestQuery(warehouseTable, warehouseColumns, []string{"name"})
	if err != nil {
		return nil, err
	}
	rows, err := b.queryMaps(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read warehouses: %w", err)
	}
	results := make([]compliance.Warehouse, 0, len(rows))
	for _, row := range rows {
		results = append(results, warehouseFromRow(row))
	}
	return results, nil
}

func (b *baseConnector) RetentionObjects(ctx context.Context) ([]compliance.RetentionObject, error) {
	query, err := b.latestQuery(retentionTable, retentionColumns, []string{"object_type", "database_name", "schema_name", "table_name"})
	if err != nil {
		return nil, err
	}
	rows, err := b.queryMaps(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read retention objects: %w", err)
	}
	results := make([]compliance.RetentionObject, 0, len(rows))
	for _, row := range rows {
		obj, ok := retentionFromRow(row)
		if ok {
			results = append(results, obj)
		}
	}
	return results, nil
}

func (b *baseConnector) TagAssignments(ctx context.Context) ([]compliance.TagAssignment, error) {
	query, err := b.latestCaptureQuery(tagTable, tagColumns, []string{"object_type", "object_name", "tag_name"})
	if err != nil {
		return nil, err
	}
	rows, err := b.queryMaps(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read tag references: %w", err)
	}
	results := make([]compliance.TagAssignment, 0, len(rows))
	for _, row := range rows {
		objectType, ok := compliance.ParseObjectType(stringValue(row, "object_type"))
		if !ok {
			continue
		}
		results = append(results, compliance.TagAssignment{
			ObjectType: objectType,
			ObjectName: stringValue(row, "object_name"),
			TagName:    stringValue(row, "tag_name"),
			TagValue:   stringValue(row, "tag_value"),
		})
	}
	return results, nil
}

func (b *baseConnector) queryMaps(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRowsToMaps(rows)
}

func warehouseFromRow(row map[string]any) compliance.Warehouse {
	return compliance.Warehouse{
		Name:                          stringValue(row, "name"),
		Type:                          stringValue(row, "type"),
		Size:                          stringValue(row, "size"),
		Owner:                         stringValue(row, "owner"),
		AutoSuspend:                   intValue(row, "auto_suspend"),
		StatementTimeoutSeconds:       intValue(row, "statement_timeout_in_seconds"),
		StatementQueuedTimeoutSeconds: intValue(row, "statement_queued_timeout_in_seconds"),
		MinClusterCount:               intValue(row, "min_cluster_count"),
		MaxClusterCount:               intValue(row, "max_cluster_count"),
		ScalingPolicy:                 stringValue(row, "scaling_policy"),
		MaxConcurrencyLevel:           intValue(row, "max_concurrency_level"),
		Comment:                       stringValue(row, "comment"),
		CaptureTimestamp:              timeValue(row, "capture_timestamp"),
	}
}

func retentionFromRow(row map[string]any) (compliance.RetentionObject, bool) {
	objectType, ok := compliance.ParseObjectType(stringValue(row, "object_type"))
	if !ok || !objectType.IsInventoryType() || objectType == compliance.ObjectWarehouse {
		return compliance.RetentionObject{}, false
	}
	return compliance.RetentionObject{
		ObjectType:       objectType,
		Database:         stringValue(row, "database_name"),
		Schema:           stringValue(row, "schema_name"),
		Table:            stringValue(row, "table_name"),
		TableType:        stringValue(row, "table_type"),
		RetentionDays:    intValue(row, "data_retention_time_in_days"),
		Owner:            stringValue(row, "owner"),
		RowCount:         intValue(row, "row_count"),
		Bytes:            intValue(row, "bytes"),
		Comment:          stringValue(row, "comment"),
		CaptureTimestamp: timeValue(row, "capture_timestamp"),
	}, true
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

func splitIdentifier(ident string) ([]string, error) {
	trimmed := strings.TrimSpace(ident)
	if trimmed == "" {
		return nil, errors.New("identifier is empty")
	}
	parts := strings.Split(trimmed, ".")
	for _, part := range parts {
		if part == "" {
			return nil, errors.New("identifier contains empty segment")
		}
		if !identPattern.MatchString(part) {
			return nil, fmt.Errorf("identifier segment %q is invalid", part)
		}
	}
	return parts, nil
}

func quoteQualified(ident string, maxSegments int, quote func(string) string) (string, []string, error) {
	parts, err := splitIdentifier(ident)
	if err != nil {
		return "", nil, err
	}
	if maxSegments > 0 && len(parts) > maxSegments {
		return "", nil, fmt.Errorf("identifier %q has too many segments", ident)
	}
	quoted := make([]string, len(parts))
	for i, part := range parts {
		quoted[i] = quote(part)
	}
	return strings.Join(quoted, "."), parts, nil
}

func quoteList(names []string, quote func(string) string) (string, error) {
	if len(names) == 0 {
		return "", errors.New("no columns provided")
	}
	quoted := make([]string, len(names))
	for i, name := range names {
		parts, err := splitIdentifier(name)
		if err != nil || len(parts) != 1 {
			return "", fmt.Errorf("invalid column name %q", name)
		}
		quoted[i] = quote(name)
	}
	return strings.Join(quoted, ", "), nil
}

// scanRowsToMaps keys every row by lower-cased column name.
func scanRowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		for i := range values {
			var v any
			values[i] = &v
		}
		if err := rows.Scan(values...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := *(values[i].(*any))
			row[strings.ToLower(col)] = normalizeValue(v)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(t)
	default:
		return t
	}
}

func stringValue(row map[string]any, col string) string {
	v, ok := row[col]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// intValue keeps NULL distinct from zero.
func intValue(row map[string]any, col string) *int64 {
	v, ok := row[col]
	if !ok || v == nil {
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	n := int64(f)
	return &n
}

func timeValue(row map[string]any, col string) time.Time {
	t, _ := toTime(row[col])
	return t.UTC()
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	default:
		return time.Time{}, false
	}
}

func parseTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999", s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
