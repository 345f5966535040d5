package compliance

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultStatementTimeoutSeconds = 14400
	DefaultTagPlaceholder          = "<value>"
	DefaultSnapshotSchema          = "data_schema"
)

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

var warehouseParameters = map[string]bool{
	ParamAutoSuspend:            true,
	ParamStatementTimeout:       true,
	ParamStatementQueuedTimeout: true,
	ParamMinClusterCount:        true,
	ParamMaxClusterCount:        true,
	ParamMaxConcurrencyLevel:    true,
}

// Generator renders corrective statements for single violations.
type Generator struct {
	// DefaultStatementTimeout replaces the threshold for rules in ZeroTimeoutRuleIDs,
	// whose threshold of 0 is not a usable timeout.
	DefaultStatementTimeout int64
	ZeroTimeoutRuleIDs      []string
	TagPlaceholder          string
	// SnapshotSchema holds the inventory tables touched by GenerateSnapshotUpdate.
	SnapshotSchema string
}

func NewGenerator() Generator {
	return Generator{
		DefaultStatementTimeout: DefaultStatementTimeoutSeconds,
		ZeroTimeoutRuleIDs:      []string{RuleZeroStatementTimeout},
		TagPlaceholder:          DefaultTagPlaceholder,
		SnapshotSchema:          DefaultSnapshotSchema,
	}
}

// GenerateFix returns the statement that brings object in line with violation.
// Unsupported parameters yield a SQL comment instead of an error.
func (g Generator) GenerateFix(object Object, violation Violation) string {
	param := strings.ToUpper(violation.Parameter)
	switch {
	case param == ParamTag:
		return g.tagFix(object, violation)
	case warehouseParameters[param] && object.Kind() == ObjectWarehouse:
		return fmt.Sprintf("ALTER WAREHOUSE %s\nSET %s = %d;", QuoteQualified(object.QualifiedName()), param, g.targetValue(violation))
	case param == ParamDataRetentionDays && isRetentionLevel(object.Kind()):
		return fmt.Sprintf("ALTER %s %s SET %s = %d;", object.Kind(), QuoteQualified(object.QualifiedName()), param, g.targetValue(violation))
	default:
		return noSQL(violation.Parameter)
	}
}

// GenerateSnapshotUpdate returns the statement that updates the stored inventory
// snapshot after the fix for violation was executed.
func (g Generator) GenerateSnapshotUpdate(object Object, violation Violation) string {
	param := strings.ToUpper(violation.Parameter)
	schema := g.SnapshotSchema
	if schema == "" {
		schema = DefaultSnapshotSchema
	}
	switch {
	case warehouseParameters[param] && object.Kind() == ObjectWarehouse:
		return fmt.Sprintf("UPDATE %s.warehouse_details \nSET %s = %d \nWHERE name = %s;",
			schema, param, g.targetValue(violation), quoteLiteral(object.QualifiedName()))
	case param == ParamDataRetentionDays && isRetentionLevel(object.Kind()):
		ro, ok := object.(RetentionObject)
		if !ok {
			return noSQL(violation.Parameter)
		}
		where := []string{
			"object_type = " + quoteLiteral(string(ro.ObjectType)),
			"database_name = " + quoteLiteral(ro.Database),
		}
		if ro.ObjectType != ObjectDatabase {
			where = append(where, "schema_name = "+quoteLiteral(ro.Schema))
		}
		if ro.ObjectType == ObjectTable {
			where = append(where, "table_name = "+quoteLiteral(ro.Table))
		}
		return fmt.Sprintf("UPDATE %s.database_retention_details \nSET %s = %d \nWHERE %s;",
			schema, param, g.targetValue(violation), strings.Join(where, " AND "))
	default:
		return noSQL(violation.Parameter)
	}
}

// FixScript concatenates the fixes of every non-whitelisted, SQL-fixable violation.
func (g Generator) FixScript(results []ObjectCompliance) string {
	var statements []string
	for _, result := range results {
		for _, v := range result.ActiveViolations() {
			if v.FixSQL {
				statements = append(statements, g.GenerateFix(result.Object, v))
			}
		}
	}
	return Script(statements)
}

func (g Generator) TagFixScript(results []ObjectTagCompliance) string {
	var statements []string
	for _, result := range results {
		for _, v := range result.ActiveViolations() {
			if v.FixSQL {
				statements = append(statements, g.GenerateFix(result.Object, v))
			}
		}
	}
	return Script(statements)
}

// Script joins statements into one batch separated by blank lines.
func Script(statements []string) string {
	return strings.Join(statements, "\n\n")
}

func (g Generator) targetValue(violation Violation) int64 {
	for _, id := range g.ZeroTimeoutRuleIDs {
		if strings.EqualFold(id, violation.RuleID) {
			return g.DefaultStatementTimeout
		}
	}
	return int64(violation.Threshold)
}

func (g Generator) tagFix(object Object, violation Violation) string {
	if violation.TagName == "" {
		return noSQL(violation.Parameter)
	}
	placeholder := g.TagPlaceholder
	if placeholder == "" {
		placeholder = DefaultTagPlaceholder
	}
	return fmt.Sprintf("ALTER %s %s SET TAG %s = %s;",
		object.Kind(), QuoteQualified(object.QualifiedName()), QuoteQualified(violation.TagName), quoteLiteral(placeholder))
}

func isRetentionLevel(t ObjectType) bool {
	return t == ObjectDatabase || t == ObjectSchema || t == ObjectTable
}

func noSQL(parameter string) string {
	return "-- No SQL available for parameter: " + parameter
}

// QuoteQualified double-quotes every dot-separated segment that is not a plain identifier.
func QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = quoteIdent(part)
	}
	return strings.Join(parts, ".")
}

func quoteIdent(part string) string {
	if plainIdent.MatchString(part) {
		return part
	}
	if len(part) >= 2 && strings.HasPrefix(part, `"`) && strings.HasSuffix(part, `"`) {
		return part
	}
	return `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
