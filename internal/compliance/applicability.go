package compliance

import "strings"

// Built-in retention rule ids. Each one only applies to a single object level.
const (
	RuleMaxDatabaseRetention = "MAX_DATABASE_RETENTION"
	RuleMinDatabaseRetention = "MIN_DATABASE_RETENTION"
	RuleMaxSchemaRetention   = "MAX_SCHEMA_RETENTION"
	RuleMinSchemaRetention   = "MIN_SCHEMA_RETENTION"
	RuleMaxTableRetention    = "MAX_TABLE_RETENTION"
	RuleMinTableRetention    = "MIN_TABLE_RETENTION"

	RuleZeroStatementTimeout = "ZERO_STATEMENT_TIMEOUT"
)

// Applicability maps a rule id to the object type it is evaluated against.
// Rules without an entry fall back to their catalog target type.
type Applicability map[string]ObjectType

func DefaultApplicability() Applicability {
	return Applicability{
		RuleMaxDatabaseRetention: ObjectDatabase,
		RuleMinDatabaseRetention: ObjectDatabase,
		RuleMaxSchemaRetention:   ObjectSchema,
		RuleMinSchemaRetention:   ObjectSchema,
		RuleMaxTableRetention:    ObjectTable,
		RuleMinTableRetention:    ObjectTable,
	}
}

// Merge returns a copy of a with the entries of other added on top.
func (a Applicability) Merge(other Applicability) Applicability {
	out := make(Applicability, len(a)+len(other))
	for id, t := range a {
		out[strings.ToUpper(id)] = t
	}
	for id, t := range other {
		out[strings.ToUpper(id)] = t
	}
	return out
}

// TargetFor returns the object type a rule is evaluated against.
func (a Applicability) TargetFor(rule Rule) ObjectType {
	if t, ok := a[strings.ToUpper(rule.ID)]; ok {
		return t
	}
	return rule.TargetType
}

func (a Applicability) Applies(rule Rule, objectType ObjectType) bool {
	target := a.TargetFor(rule)
	return target != "" && target == objectType
}
