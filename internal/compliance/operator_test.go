package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperatorCompliant(t *testing.T) {
	tests := []struct {
		name      string
		op        Operator
		value     *float64
		threshold float64
		want      bool
	}{
		{"max above", OperatorMax, f64(60), 30, false},
		{"max equal", OperatorMax, f64(30), 30, true},
		{"max below", OperatorMax, f64(0), 30, true},
		{"max nil", OperatorMax, nil, 30, true},
		{"min below", OperatorMin, f64(10), 30, false},
		{"min equal", OperatorMin, f64(30), 30, true},
		{"min nil", OperatorMin, nil, 30, true},
		{"equals match", OperatorEquals, f64(5), 5, true},
		{"equals mismatch", OperatorEquals, f64(6), 5, false},
		{"equals nil", OperatorEquals, nil, 5, false},
		{"not equals match", OperatorNotEquals, f64(5), 5, false},
		{"not equals mismatch", OperatorNotEquals, f64(6), 5, true},
		{"not equals nil", OperatorNotEquals, nil, 5, true},
		{"unknown", Operator("BETWEEN"), f64(1000), 5, true},
		{"unset", Operator(""), f64(1000), 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Compliant(tt.value, tt.threshold))
		})
	}
}

func TestEqualsAndNotEqualsAreComplements(t *testing.T) {
	values := []float64{-1, 0, 0.5, 1, 30, 14400}
	for _, v := range values {
		for _, th := range values {
			assert.NotEqual(t,
				OperatorEquals.Compliant(f64(v), th),
				OperatorNotEquals.Compliant(f64(v), th),
				"v=%v t=%v", v, th)
		}
	}
}

func TestParseOperator(t *testing.T) {
	op, ok := ParseOperator("max")
	assert.True(t, ok)
	assert.Equal(t, OperatorMax, op)

	op, ok = ParseOperator("!=")
	assert.True(t, ok)
	assert.Equal(t, OperatorNotEquals, op)

	_, ok = ParseOperator("between")
	assert.False(t, ok)
}

func TestOperatorDescribe(t *testing.T) {
	assert.Equal(t, "<= 30 seconds", OperatorMax.Describe(30, "seconds"))
	assert.Equal(t, ">= 1.5", OperatorMin.Describe(1.5, ""))
	assert.Equal(t, "ODD", Operator("ODD").Describe(1, "days"))
}
