package compliance

import "time"

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64 { return &v }
func str(v string) *string { return &v }

var captured = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func warehouseRule(id, param string, op Operator) Rule {
	return Rule{
		ID:         id,
		Name:       id,
		TargetType: ObjectWarehouse,
		Parameter:  param,
		Operator:   op,
		Unit:       "seconds",
		FixButton:  true,
		FixSQL:     true,
		Active:     true,
	}
}

func applied(id int64, rule Rule, threshold float64) AppliedRule {
	return AppliedRule{ID: id, Rule: rule, Threshold: threshold, Scope: ScopeAll, Active: true, AppliedAt: captured}
}
