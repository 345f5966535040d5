package compliance

import (
	"strings"
	"time"
)

// Parameters understood by the evaluator and the remediation generator.
const (
	ParamAutoSuspend            = "AUTO_SUSPEND"
	ParamStatementTimeout       = "STATEMENT_TIMEOUT_IN_SECONDS"
	ParamStatementQueuedTimeout = "STATEMENT_QUEUED_TIMEOUT_IN_SECONDS"
	ParamMinClusterCount        = "MIN_CLUSTER_COUNT"
	ParamMaxClusterCount        = "MAX_CLUSTER_COUNT"
	ParamMaxConcurrencyLevel    = "MAX_CONCURRENCY_LEVEL"
	ParamDataRetentionDays      = "DATA_RETENTION_TIME_IN_DAYS"
	ParamTag                    = "TAG"
)

// Object is a read-only inventory snapshot row.
type Object interface {
	Kind() ObjectType
	// QualifiedName is the identity used for tag and whitelist matching.
	QualifiedName() string
	OwnerName() string
	// Parameter returns the current value of a configuration parameter. known is
	// false when the object type has no such parameter; a nil value means unset.
	Parameter(name string) (value *float64, known bool)
	CapturedAt() time.Time
}

type Warehouse struct {
	Name                          string    `json:"name" yaml:"name"`
	Type                          string    `json:"type" yaml:"type"`
	Size                          string    `json:"size" yaml:"size"`
	Owner                         string    `json:"owner" yaml:"owner"`
	AutoSuspend                   *int64    `json:"autoSuspend" yaml:"auto_suspend"`
	StatementTimeoutSeconds       *int64    `json:"statementTimeoutInSeconds" yaml:"statement_timeout_in_seconds"`
	StatementQueuedTimeoutSeconds *int64    `json:"statementQueuedTimeoutInSeconds" yaml:"statement_queued_timeout_in_seconds"`
	MinClusterCount               *int64    `json:"minClusterCount" yaml:"min_cluster_count"`
	MaxClusterCount               *int64    `json:"maxClusterCount" yaml:"max_cluster_count"`
	ScalingPolicy                 string    `json:"scalingPolicy" yaml:"scaling_policy"`
	MaxConcurrencyLevel           *int64    `json:"maxConcurrencyLevel" yaml:"max_concurrency_level"`
	Comment                       string    `json:"comment" yaml:"comment"`
	CaptureTimestamp              time.Time `json:"captureTimestamp" yaml:"capture_timestamp"`
}

func (w Warehouse) Kind() ObjectType { return ObjectWarehouse }
func (w Warehouse) QualifiedName() string { return w.Name }
func (w Warehouse) OwnerName() string { return w.Owner }
func (w Warehouse) CapturedAt() time.Time { return w.CaptureTimestamp }

func (w Warehouse) Parameter(name string) (*float64, bool) {
	switch strings.ToUpper(name) {
	case ParamAutoSuspend:
		return toValue(w.AutoSuspend), true
	case ParamStatementTimeout:
		return toValue(w.StatementTimeoutSeconds), true
	case ParamStatementQueuedTimeout:
		return toValue(w.StatementQueuedTimeoutSeconds), true
	case ParamMinClusterCount:
		return toValue(w.MinClusterCount), true
	case ParamMaxClusterCount:
		return toValue(w.MaxClusterCount), true
	case ParamMaxConcurrencyLevel:
		return toValue(w.MaxConcurrencyLevel), true
	default:
		return nil, false
	}
}

// RetentionObject is a database, schema or table row of the retention inventory.
type RetentionObject struct {
	ObjectType       ObjectType `json:"objectType" yaml:"object_type"`
	Database         string     `json:"databaseName" yaml:"database_name"`
	Schema           string     `json:"schemaName,omitempty" yaml:"schema_name"`
	Table            string     `json:"tableName,omitempty" yaml:"table_name"`
	TableType        string     `json:"tableType,omitempty" yaml:"table_type"`
	RetentionDays    *int64     `json:"dataRetentionTimeInDays" yaml:"data_retention_time_in_days"`
	Owner            string     `json:"owner" yaml:"owner"`
	RowCount         *int64     `json:"rowCount,omitempty" yaml:"row_count"`
	Bytes            *int64     `json:"bytes,omitempty" yaml:"bytes"`
	Comment          string     `json:"comment,omitempty" yaml:"comment"`
	CaptureTimestamp time.Time  `json:"captureTimestamp" yaml:"capture_timestamp"`
}

func (o RetentionObject) Kind() ObjectType { return o.ObjectType }
func (o RetentionObject) OwnerName() string { return o.Owner }
func (o RetentionObject) CapturedAt() time.Time { return o.CaptureTimestamp }

// QualifiedName joins the identity parts relevant for the object level.
func (o RetentionObject) QualifiedName() string {
	switch o.ObjectType {
	case ObjectDatabase:
		return o.Database
	case ObjectSchema:
		return o.Database + "." + o.Schema
	default:
		return o.Database + "." + o.Schema + "." + o.Table
	}
}

func (o RetentionObject) Parameter(name string) (*float64, bool) {
	if strings.ToUpper(name) == ParamDataRetentionDays {
		return toValue(o.RetentionDays), true
	}
	return nil, false
}

func toValue(v *int64) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

// RetentionObjects converts typed rows to the Object interface.
func RetentionObjects(rows []RetentionObject) []Object {
	out := make([]Object, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	return out
}

func Warehouses(rows []Warehouse) []Object {
	out := make([]Object, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	return out
}
