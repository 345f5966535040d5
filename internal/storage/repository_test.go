package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-monitor/internal/compliance"
	"compliance-monitor/migrations"
)

func setupTestRepository(t *testing.T) *Repository {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL not set")
	}
	require.NoError(t, migrations.Up(dsn))
	store, err := NewStore(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	_, err = store.Pool.Exec(context.Background(), `TRUNCATE whitelist, tag_rules, applied_rules, rule_catalog,
		warehouse_details, database_retention_details, tag_references, inventory_captures, inventory_refresh_runs RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return NewRepository(store)
}

func seedRule(t *testing.T, repo *Repository) compliance.Rule {
	threshold := 300.0
	rule := compliance.Rule{
		ID:               "MAX_AUTO_SUSPEND",
		Name:             "Maximum auto-suspend",
		TargetType:       compliance.ObjectWarehouse,
		Parameter:        compliance.ParamAutoSuspend,
		Operator:         compliance.OperatorMax,
		Unit:             "seconds",
		DefaultThreshold: &threshold,
		AllowOverride:    true,
		FixSQL:           true,
		Active:           true,
	}
	require.NoError(t, repo.UpsertRules(context.Background(), []compliance.Rule{rule}))
	return rule
}

func TestUpsertRulesRetiresMissing(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	rule := seedRule(t, repo)

	other := rule
	other.ID = "MIN_AUTO_SUSPEND"
	other.Operator = compliance.OperatorMin
	require.NoError(t, repo.UpsertRules(ctx, []compliance.Rule{other}))

	active, err := repo.ListRules(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "MIN_AUTO_SUSPEND", active[0].ID)

	retired, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, retired.Active)

	_, err = repo.GetRule(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertRulesRefusesSemanticChangeOfAppliedRule(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	rule := seedRule(t, repo)

	_, err := repo.ApplyRule(ctx, compliance.AppliedRule{Rule: rule, Threshold: 60, Scope: compliance.ScopeAll}, nil)
	require.NoError(t, err)

	flipped := rule
	flipped.Operator = compliance.OperatorMin
	err = repo.UpsertRules(ctx, []compliance.Rule{flipped})
	require.ErrorIs(t, err, ErrRuleInUse)
	assert.Contains(t, err.Error(), rule.ID)

	stored, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, compliance.OperatorMax, stored.Operator)

	renamed := rule
	renamed.Name = "Auto-suspend ceiling"
	require.NoError(t, repo.UpsertRules(ctx, []compliance.Rule{renamed}))
	stored, err = repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "Auto-suspend ceiling", stored.Name)
}

func TestApplyRuleSupersedesActiveCombination(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	rule := seedRule(t, repo)

	first, err := repo.ApplyRule(ctx, compliance.AppliedRule{Rule: rule, Threshold: 60, Scope: compliance.ScopeAll, AppliedBy: "alice"}, nil)
	require.NoError(t, err)
	assert.True(t, first.Active)
	assert.Equal(t, "Maximum auto-suspend", first.Rule.Name)

	second, err := repo.ApplyRule(ctx, compliance.AppliedRule{Rule: rule, Threshold: 30, Scope: compliance.ScopeAll, AppliedBy: "bob"}, []int64{first.ID})
	require.NoError(t, err)

	active, err := repo.ListAppliedRules(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
	assert.Equal(t, 30.0, active[0].Threshold)

	tag := "ENV"
	_, err = repo.ApplyRule(ctx, compliance.AppliedRule{Rule: rule, Threshold: 10, Scope: compliance.ScopeTagBased, TagName: &tag}, nil)
	require.NoError(t, err)
	active, err = repo.ListAppliedRules(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, repo.DeactivateAppliedRule(ctx, second.ID))
	assert.ErrorIs(t, repo.DeactivateAppliedRule(ctx, second.ID), ErrNotFound)
}

func TestTagRulesUniqueWhileActive(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	saved, err := repo.ApplyTagRule(ctx, compliance.TagRule{TagName: "CostCenter", ObjectType: compliance.ObjectWarehouse})
	require.NoError(t, err)

	_, err = repo.ApplyTagRule(ctx, compliance.TagRule{TagName: "COSTCENTER", ObjectType: compliance.ObjectWarehouse})
	assert.ErrorIs(t, err, compliance.ErrDuplicate)

	require.NoError(t, repo.DeactivateTagRule(ctx, saved.ID))
	_, err = repo.ApplyTagRule(ctx, compliance.TagRule{TagName: "COSTCENTER", ObjectType: compliance.ObjectWarehouse})
	require.NoError(t, err)

	rules, err := repo.ListTagRules(ctx, true)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestWhitelistLifecycle(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	seedRule(t, repo)

	entry := compliance.WhitelistEntry{RuleID: "MAX_AUTO_SUSPEND", ObjectType: compliance.ObjectWarehouse, ObjectName: "ETL_WH", Reason: "batch"}
	saved, err := repo.AddWhitelistEntry(ctx, entry)
	require.NoError(t, err)
	assert.Equal(t, "Maximum auto-suspend", saved.RuleName)

	_, err = repo.AddWhitelistEntry(ctx, entry)
	assert.ErrorIs(t, err, compliance.ErrDuplicate)

	entries, err := repo.ListWhitelist(ctx, compliance.ObjectWarehouse)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	other, err := repo.AddWhitelistEntry(ctx, compliance.WhitelistEntry{RuleID: "MAX_AUTO_SUSPEND", ObjectType: compliance.ObjectWarehouse, ObjectName: "BI_WH", Reason: "bi"})
	require.NoError(t, err)

	removed, err := repo.RemoveWhitelistEntries(ctx, []int64{saved.ID, other.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.ErrorIs(t, repo.RemoveWhitelistEntry(ctx, saved.ID), ErrNotFound)
}

func TestSnapshotLatestRows(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	suspend := int64(600)
	fixed := int64(60)

	require.NoError(t, repo.InsertSnapshot(ctx, Snapshot{
		Source:     "prod",
		CapturedAt: old,
		Warehouses: []compliance.Warehouse{{Name: "ETL_WH", AutoSuspend: &suspend}},
		Tags:       []compliance.TagAssignment{{ObjectType: compliance.ObjectWarehouse, ObjectName: "ETL_WH", TagName: "ENV", TagValue: "prod"}},
	}))
	require.NoError(t, repo.InsertSnapshot(ctx, Snapshot{
		Source:           "prod",
		CapturedAt:       old.Add(time.Hour),
		Warehouses:       []compliance.Warehouse{{Name: "ETL_WH", AutoSuspend: &fixed}},
		RetentionObjects: []compliance.RetentionObject{{ObjectType: compliance.ObjectDatabase, Database: "SALES"}},
	}))

	warehouses, err := repo.LatestWarehouses(ctx)
	require.NoError(t, err)
	require.Len(t, warehouses, 1)
	require.NotNil(t, warehouses[0].AutoSuspend)
	assert.Equal(t, int64(60), *warehouses[0].AutoSuspend)

	objects, err := repo.LatestRetentionObjects(ctx, compliance.ObjectDatabase)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Nil(t, objects[0].RetentionDays)

	tags, err := repo.LatestTagAssignments(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags, "latest capture has no tags")

	completed := old.Add(2 * time.Hour)
	require.NoError(t, repo.RecordRefreshRun(ctx, RefreshRun{RunID: "7d0f6f39-5f0f-4a4d-9f61-3f1f9d3a1a10", Source: "prod", Trigger: "manual", Status: RunStatusSucceeded, StartedAt: old, CompletedAt: &completed}))
	runs, err := repo.ListRefreshRuns(ctx, "prod", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusSucceeded, runs[0].Status)
}

func TestLatestTagAssignmentsDropsRemovedTags(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	first := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertSnapshot(ctx, Snapshot{
		Source:     "prod",
		CapturedAt: first,
		Tags: []compliance.TagAssignment{
			{ObjectType: compliance.ObjectWarehouse, ObjectName: "ETL_WH", TagName: "COSTCENTER", TagValue: "42"},
			{ObjectType: compliance.ObjectWarehouse, ObjectName: "ETL_WH", TagName: "ENV", TagValue: "prod"},
		},
	}))
	require.NoError(t, repo.InsertSnapshot(ctx, Snapshot{
		Source:     "prod",
		CapturedAt: first.Add(time.Hour),
		Tags:       []compliance.TagAssignment{{ObjectType: compliance.ObjectWarehouse, ObjectName: "ETL_WH", TagName: "ENV", TagValue: "prod"}},
	}))
	require.NoError(t, repo.InsertSnapshot(ctx, Snapshot{
		Source:     "dev",
		CapturedAt: first,
		Tags:       []compliance.TagAssignment{{ObjectType: compliance.ObjectDatabase, ObjectName: "SCRATCH", TagName: "OWNER", TagValue: "data"}},
	}))

	tags, err := repo.LatestTagAssignments(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	names := []string{tags[0].TagName, tags[1].TagName}
	assert.ElementsMatch(t, []string{"ENV", "OWNER"}, names)
}

func TestWhitelistUniqueOnComplianceKey(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	seedRule(t, repo)

	tagged := func(name string) *string { return &name }

	_, err := repo.AddWhitelistEntry(ctx, compliance.WhitelistEntry{RuleID: "MAX_AUTO_SUSPEND", ObjectType: compliance.ObjectWarehouse, ObjectName: "ETL_WH", Reason: "batch"})
	require.NoError(t, err)
	_, err = repo.AddWhitelistEntry(ctx, compliance.WhitelistEntry{RuleID: "MAX_AUTO_SUSPEND", ObjectType: compliance.ObjectWarehouse, ObjectName: "ETL_WH",
		TagName: tagged("ENV"), Reason: "tag is not part of the key"})
	assert.ErrorIs(t, err, compliance.ErrDuplicate)

	_, err = repo.AddWhitelistEntry(ctx, compliance.WhitelistEntry{RuleID: compliance.MissingTagRuleID, ObjectType: compliance.ObjectWarehouse, ObjectName: "ETL_WH",
		TagName: tagged(`GOVERNANCE.TAGS."CostCenter"`), Reason: "shared"})
	require.NoError(t, err)
	_, err = repo.AddWhitelistEntry(ctx, compliance.WhitelistEntry{RuleID: compliance.MissingTagRuleID, ObjectType: compliance.ObjectWarehouse, ObjectName: "ETL_WH",
		TagName: tagged("COSTCENTER"), Reason: "same short name"})
	assert.ErrorIs(t, err, compliance.ErrDuplicate)

	_, err = repo.AddWhitelistEntry(ctx, compliance.WhitelistEntry{RuleID: compliance.MissingTagRuleID, ObjectType: compliance.ObjectWarehouse, ObjectName: "ETL_WH",
		TagName: tagged("ENV"), Reason: "different tag"})
	require.NoError(t, err)
}
