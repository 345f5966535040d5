package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSnapshot = `
warehouses:
  - name: WH_ETL
    owner: DATA_ENG
    auto_suspend: 600
  - name: WH_BI
    owner: ANALYTICS
    auto_suspend: 60
retention_objects:
  - object_type: database
    database_name: SALES
    data_retention_time_in_days: 30
tags:
  - object_type: warehouse
    object_name: WH_BI
    tag_name: GOV.TAGS.COSTCENTER
    tag_value: "42"
applied_rules:
  - rule_id: MAX_AUTO_SUSPEND
  - rule_id: MAX_DATABASE_RETENTION
    threshold: 7
tag_rules:
  - tag_name: CostCenter
    object_type: WAREHOUSE
whitelist:
  - rule_id: MAX_DATABASE_RETENTION
    object_type: DATABASE
    object_name: SALES
    reason: Legal hold
`

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEvaluateWarehousesTable(t *testing.T) {
	path := writeSnapshot(t, testSnapshot)

	out, err := run(t, "evaluate", "warehouses", "--snapshot", path, "--status", "non-compliant")
	require.NoError(t, err)
	assert.Contains(t, out, "WH_ETL")
	assert.Contains(t, out, "NON-COMPLIANT")
	assert.Contains(t, out, "MAX_AUTO_SUSPEND")
	assert.NotContains(t, out, "WH_BI")
	assert.Contains(t, out, "2 OBJECTS")
}

func TestEvaluateRetentionJSON(t *testing.T) {
	path := writeSnapshot(t, testSnapshot)

	out, err := run(t, "evaluate", "retention", "--snapshot", path, "-o", "json")
	require.NoError(t, err)

	var report struct {
		Summary struct {
			Total           int `json:"total"`
			Compliant       int `json:"compliant"`
			WithWhitelisted int `json:"withWhitelisted"`
		} `json:"summary"`
		Results []struct {
			ObjectName string `json:"objectName"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Compliant)
	assert.Equal(t, 1, report.Summary.WithWhitelisted)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "SALES", report.Results[0].ObjectName)
}

func TestEvaluateTags(t *testing.T) {
	path := writeSnapshot(t, testSnapshot)

	out, err := run(t, "evaluate", "tags", "--snapshot", path, "--search", "wh_etl")
	require.NoError(t, err)
	assert.Contains(t, out, "WH_ETL")
	assert.Contains(t, out, "missing")
	assert.NotContains(t, out, "WH_BI")
}

func TestFixSQL(t *testing.T) {
	path := writeSnapshot(t, testSnapshot)

	out, err := run(t, "fix-sql", "warehouses", "--snapshot", path)
	require.NoError(t, err)
	assert.Equal(t, "ALTER WAREHOUSE WH_ETL\nSET AUTO_SUSPEND = 300;\n", out)

	out, err = run(t, "fix-sql", "retention", "--snapshot", path)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	path := writeSnapshot(t, testSnapshot)

	_, err := run(t, "evaluate", "clusters", "--snapshot", path)
	assert.Error(t, err)

	_, err = run(t, "evaluate", "warehouses", "--snapshot", path, "--status", "broken")
	assert.Error(t, err)

	_, err = run(t, "evaluate", "warehouses", "--snapshot", path, "-o", "xml")
	assert.Error(t, err)

	_, err = run(t, "evaluate", "warehouses")
	assert.Error(t, err)
}

func TestSnapshotRuleErrorsNameTheEntry(t *testing.T) {
	path := writeSnapshot(t, `
applied_rules:
  - rule_id: NOT_A_RULE
`)
	_, err := run(t, "evaluate", "warehouses", "--snapshot", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "applied_rules[0] NOT_A_RULE")

	path = writeSnapshot(t, `
whitelist:
  - rule_id: MAX_AUTO_SUSPEND
    object_type: WAREHOUSE
    object_name: WH_ETL
`)
	_, err = run(t, "evaluate", "warehouses", "--snapshot", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whitelist[0]")
}

func TestParseSnapshotRejectsUnknownObjectType(t *testing.T) {
	_, err := parseSnapshot([]byte(`
retention_objects:
  - object_type: WAREHOUSE
    database_name: X
`))
	assert.Error(t, err)
}

func TestCatalogCommands(t *testing.T) {
	out, err := run(t, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "MAX_AUTO_SUSPEND")

	out, err = run(t, "catalog", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "catalog ok")

	bad := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules: []\n"), 0o600))
	_, err = run(t, "catalog", "validate", bad)
	assert.Error(t, err)
}
