package compliance

import (
	"fmt"
	"strings"
)

// Operator is the comparison a rule applies between the current value and its threshold.
type Operator string

const (
	OperatorMax       Operator = "MAX"
	OperatorMin       Operator = "MIN"
	OperatorEquals    Operator = "EQUALS"
	OperatorNotEquals Operator = "NOT_EQUALS"
)

// ParseOperator accepts any casing and the symbolic forms used in older catalogs.
func ParseOperator(value string) (Operator, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "MAX", "<=":
		return OperatorMax, true
	case "MIN", ">=":
		return OperatorMin, true
	case "EQUALS", "=", "==":
		return OperatorEquals, true
	case "NOT_EQUALS", "!=", "<>":
		return OperatorNotEquals, true
	default:
		return "", false
	}
}

func (o Operator) Known() bool {
	switch o {
	case OperatorMax, OperatorMin, OperatorEquals, OperatorNotEquals:
		return true
	default:
		return false
	}
}

// Compliant reports whether value satisfies the operator against threshold.
// A nil value is unset: it never exceeds a MAX or undercuts a MIN, it never equals
// a threshold, and an unknown operator checks nothing.
func (o Operator) Compliant(value *float64, threshold float64) bool {
	switch o {
	case OperatorMax:
		return value == nil || *value <= threshold
	case OperatorMin:
		return value == nil || *value >= threshold
	case OperatorEquals:
		return value != nil && *value == threshold
	case OperatorNotEquals:
		return value == nil || *value != threshold
	default:
		return true
	}
}

// Describe renders the expectation, e.g. "<= 30 seconds".
func (o Operator) Describe(threshold float64, unit string) string {
	var symbol string
	switch o {
	case OperatorMax:
		symbol = "<="
	case OperatorMin:
		symbol = ">="
	case OperatorEquals:
		symbol = "="
	case OperatorNotEquals:
		symbol = "!="
	default:
		return string(o)
	}
	out := fmt.Sprintf("%s %s", symbol, formatNumber(threshold))
	if unit != "" {
		out += " " + unit
	}
	return out
}

func formatNumber(value float64) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d", int64(value))
	}
	return fmt.Sprintf("%g", value)
}
