package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []ObjectCompliance {
	objects := []Object{
		Warehouse{Name: "ZETA_WH", AutoSuspend: i64(600)},
		Warehouse{Name: "ALPHA_WH", AutoSuspend: i64(10)},
		Warehouse{Name: "BETA_WH", AutoSuspend: i64(900)},
		RetentionObject{ObjectType: ObjectDatabase, Database: "SALES", RetentionDays: i64(1)},
	}
	rules := []AppliedRule{applied(1, warehouseRule("MAX_AUTO_SUSPEND", ParamAutoSuspend, OperatorMax), 60)}
	whitelist := []WhitelistEntry{{RuleID: "MAX_AUTO_SUSPEND", ObjectType: ObjectWarehouse, ObjectName: "BETA_WH", Active: true}}
	return Evaluate(objects, rules, nil, whitelist)
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResults())
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Compliant)
	assert.Equal(t, 1, s.NonCompliant)
	assert.Equal(t, 1, s.NoRulesApplicable)
	assert.Equal(t, 1, s.ActiveViolations)
	assert.Equal(t, 1, s.WhitelistedViolations)
	assert.Equal(t, 1, s.WithWhitelisted)
	assert.InDelta(t, 66.67, s.ComplianceRate, 0.01)

	assert.Equal(t, 100.0, Summarize([]ObjectCompliance{}).ComplianceRate)
}

func TestSummarizeByType(t *testing.T) {
	byType := SummarizeByType(sampleResults())
	require.Contains(t, byType, ObjectWarehouse)
	assert.Equal(t, 3, byType[ObjectWarehouse].Total)
	assert.Equal(t, 1, byType[ObjectDatabase].NoRulesApplicable)
}

func names[T Result](results []T) []string {
	out := []string{}
	for _, r := range results {
		out = append(out, r.Name())
	}
	return out
}

func TestApplyFilter(t *testing.T) {
	results := sampleResults()

	assert.Equal(t, []string{"ZETA_WH"}, names(Apply(results, Filter{Status: StatusNonCompliant})))
	assert.Equal(t, []string{"ALPHA_WH", "BETA_WH"}, names(Apply(results, Filter{Status: StatusCompliant})))
	assert.Equal(t, []string{"BETA_WH"}, names(Apply(results, Filter{Status: StatusWhitelisted})))
	assert.Equal(t, []string{"ZETA_WH", "ALPHA_WH", "BETA_WH", "SALES"}, names(Apply(results, Filter{Status: StatusNonCompliantFirst})))
	assert.Equal(t, []string{"SALES"}, names(Apply(results, Filter{ObjectType: ObjectDatabase})))
	assert.Equal(t, []string{"ALPHA_WH"}, names(Apply(results, Filter{Search: "alp"})))
	assert.Len(t, Apply(results, Filter{Search: "auto_suspend"}), 3)
}

func TestApplyFilterTagSearch(t *testing.T) {
	results := EvaluateTagPresence(
		[]Object{Warehouse{Name: "A"}, Warehouse{Name: "B"}},
		[]TagAssignment{{ObjectType: ObjectWarehouse, ObjectName: "B", TagName: "ENV", TagValue: "prod"}},
		[]TagRule{{ID: 1, TagName: "CostCenter", ObjectType: ObjectWarehouse, Active: true}},
		nil,
	)
	assert.Equal(t, []string{"B"}, names(Apply(results, Filter{Search: "env"})))
	assert.Equal(t, []string{"A", "B"}, names(Apply(results, Filter{Search: "costcenter"})))
}

func TestParseStatusFilter(t *testing.T) {
	f, ok := ParseStatusFilter("")
	assert.True(t, ok)
	assert.Equal(t, StatusAll, f)

	f, ok = ParseStatusFilter("NON_COMPLIANT")
	assert.True(t, ok)
	assert.Equal(t, StatusNonCompliant, f)

	_, ok = ParseStatusFilter("broken")
	assert.False(t, ok)
}
