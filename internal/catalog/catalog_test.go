package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-monitor/internal/compliance"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, c.Rules)

	rule, err := c.Lookup("max_auto_suspend")
	require.NoError(t, err)
	assert.Equal(t, compliance.OperatorMax, rule.Operator)
	assert.Equal(t, compliance.ObjectWarehouse, rule.TargetType)
	assert.True(t, rule.Active)
	require.NotNil(t, rule.DefaultThreshold)
	assert.Equal(t, 300.0, *rule.DefaultThreshold)

	tag, err := c.Lookup(compliance.MissingTagRuleID)
	require.NoError(t, err)
	assert.Equal(t, compliance.ObjectTag, tag.TargetType)

	assert.Equal(t, compliance.ObjectTable, c.Applicability.TargetFor(compliance.Rule{ID: "MIN_TABLE_RETENTION"}))
}

func TestParseNormalizesAndDefaultsActive(t *testing.T) {
	c, err := Parse([]byte(`
rules:
  - id: max_wh_clusters
    name: Clusters
    type: warehouse
    parameter: max_cluster_count
    operator: max
  - id: OLD
    name: Old rule
    type: WAREHOUSE
    parameter: AUTO_SUSPEND
    operator: MIN
    active: false
applicability:
  max_wh_clusters: warehouse
`))
	require.NoError(t, err)
	require.Len(t, c.Rules, 2)
	assert.Equal(t, "MAX_WH_CLUSTERS", c.Rules[0].ID)
	assert.Equal(t, "MAX_CLUSTER_COUNT", c.Rules[0].Parameter)
	assert.True(t, c.Rules[0].Active)
	assert.False(t, c.Rules[1].Active)
	assert.Len(t, c.ActiveRules(), 1)
	assert.Equal(t, compliance.ObjectWarehouse, c.Applicability["MAX_WH_CLUSTERS"])
	assert.Equal(t, compliance.ObjectDatabase, c.Applicability[compliance.RuleMaxDatabaseRetention])
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	cases := map[string]string{
		"empty":         `rules: []`,
		"bad operator":  "rules:\n  - {id: A, name: A, type: WAREHOUSE, parameter: AUTO_SUSPEND, operator: BETWEEN}",
		"missing op":    "rules:\n  - {id: A, name: A, type: WAREHOUSE, parameter: AUTO_SUSPEND}",
		"bad type":      "rules:\n  - {id: A, name: A, type: VIEW, parameter: X, operator: MAX}",
		"duplicate":     "rules:\n  - {id: A, name: A, type: WAREHOUSE, parameter: X, operator: MAX}\n  - {id: a, name: B, type: WAREHOUSE, parameter: X, operator: MAX}",
		"applicability": "rules:\n  - {id: A, name: A, type: WAREHOUSE, parameter: X, operator: MAX}\napplicability:\n  A: TAG",
		"not yaml":      "rules: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - {id: A, name: A, type: TABLE, parameter: DATA_RETENTION_TIME_IN_DAYS, operator: MIN}\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Len(t, c.Rules, 1)

	_, err = c.Lookup("B")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	c, err = Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Rules)
}
