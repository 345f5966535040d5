package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateFixWarehouse(t *testing.T) {
	g := NewGenerator()
	wh := Warehouse{Name: "ETL_WH"}

	fix := g.GenerateFix(wh, Violation{RuleID: "MAX_STATEMENT_TIMEOUT", Parameter: ParamStatementTimeout, Threshold: 3600})
	assert.Equal(t, "ALTER WAREHOUSE ETL_WH\nSET STATEMENT_TIMEOUT_IN_SECONDS = 3600;", fix)

	fix = g.GenerateFix(wh, Violation{RuleID: RuleZeroStatementTimeout, Parameter: ParamStatementTimeout, Threshold: 0})
	assert.Equal(t, "ALTER WAREHOUSE ETL_WH\nSET STATEMENT_TIMEOUT_IN_SECONDS = 14400;", fix)

	g.DefaultStatementTimeout = 7200
	fix = g.GenerateFix(wh, Violation{RuleID: "zero_statement_timeout", Parameter: ParamStatementTimeout})
	assert.Equal(t, "ALTER WAREHOUSE ETL_WH\nSET STATEMENT_TIMEOUT_IN_SECONDS = 7200;", fix)
}

func TestGenerateFixQuotesIdentifiers(t *testing.T) {
	fix := NewGenerator().GenerateFix(Warehouse{Name: "my wh"}, Violation{Parameter: ParamAutoSuspend, Threshold: 60})
	assert.Equal(t, "ALTER WAREHOUSE \"my wh\"\nSET AUTO_SUSPEND = 60;", fix)
}

func TestGenerateFixRetentionLevels(t *testing.T) {
	g := NewGenerator()
	v := Violation{Parameter: ParamDataRetentionDays, Threshold: 7}

	assert.Equal(t, "ALTER DATABASE SALES SET DATA_RETENTION_TIME_IN_DAYS = 7;",
		g.GenerateFix(RetentionObject{ObjectType: ObjectDatabase, Database: "SALES"}, v))
	assert.Equal(t, "ALTER SCHEMA SALES.RAW SET DATA_RETENTION_TIME_IN_DAYS = 7;",
		g.GenerateFix(RetentionObject{ObjectType: ObjectSchema, Database: "SALES", Schema: "RAW"}, v))
	assert.Equal(t, "ALTER TABLE SALES.RAW.ORDERS SET DATA_RETENTION_TIME_IN_DAYS = 7;",
		g.GenerateFix(RetentionObject{ObjectType: ObjectTable, Database: "SALES", Schema: "RAW", Table: "ORDERS"}, v))
}

func TestGenerateFixTag(t *testing.T) {
	g := NewGenerator()
	v := Violation{RuleID: MissingTagRuleID, Parameter: ParamTag, TagName: "GOV.TAGS.COST_CENTER"}
	assert.Equal(t, "ALTER WAREHOUSE W SET TAG GOV.TAGS.COST_CENTER = '<value>';", g.GenerateFix(Warehouse{Name: "W"}, v))

	g.TagPlaceholder = "TBD"
	assert.Equal(t, "ALTER TABLE D.S.T SET TAG GOV.TAGS.COST_CENTER = 'TBD';",
		g.GenerateFix(RetentionObject{ObjectType: ObjectTable, Database: "D", Schema: "S", Table: "T"}, v))
}

func TestGenerateFixUnknownParameter(t *testing.T) {
	g := NewGenerator()
	assert.Equal(t, "-- No SQL available for parameter: WAREHOUSE_SIZE",
		g.GenerateFix(Warehouse{Name: "W"}, Violation{Parameter: "WAREHOUSE_SIZE"}))
	assert.Equal(t, "-- No SQL available for parameter: AUTO_SUSPEND",
		g.GenerateFix(RetentionObject{ObjectType: ObjectDatabase, Database: "D"}, Violation{Parameter: ParamAutoSuspend}))
}

func TestGenerateSnapshotUpdate(t *testing.T) {
	g := NewGenerator()
	assert.Equal(t, "UPDATE data_schema.warehouse_details \nSET AUTO_SUSPEND = 30 \nWHERE name = 'O''BRIEN_WH';",
		g.GenerateSnapshotUpdate(Warehouse{Name: "O'BRIEN_WH"}, Violation{Parameter: ParamAutoSuspend, Threshold: 30}))

	schema := RetentionObject{ObjectType: ObjectSchema, Database: "SALES", Schema: "RAW"}
	assert.Equal(t, "UPDATE data_schema.database_retention_details \nSET DATA_RETENTION_TIME_IN_DAYS = 1 \nWHERE object_type = 'SCHEMA' AND database_name = 'SALES' AND schema_name = 'RAW';",
		g.GenerateSnapshotUpdate(schema, Violation{Parameter: ParamDataRetentionDays, Threshold: 1}))
}

func TestFixScriptSkipsWhitelistedAndUnfixable(t *testing.T) {
	objects := []Object{
		Warehouse{Name: "A", AutoSuspend: i64(600)},
		Warehouse{Name: "B", AutoSuspend: i64(600)},
		Warehouse{Name: "C", AutoSuspend: i64(600), MaxClusterCount: i64(10)},
	}
	noSQLRule := warehouseRule("MAX_CLUSTERS", ParamMaxClusterCount, OperatorMax)
	noSQLRule.FixSQL = false
	rules := []AppliedRule{
		applied(1, warehouseRule("MAX_AUTO_SUSPEND", ParamAutoSuspend, OperatorMax), 60),
		applied(2, noSQLRule, 2),
	}
	whitelist := []WhitelistEntry{{RuleID: "MAX_AUTO_SUSPEND", ObjectType: ObjectWarehouse, ObjectName: "B", Active: true}}

	script := NewGenerator().FixScript(Evaluate(objects, rules, nil, whitelist))
	assert.Equal(t, "ALTER WAREHOUSE A\nSET AUTO_SUSPEND = 60;\n\nALTER WAREHOUSE C\nSET AUTO_SUSPEND = 60;", script)
}
