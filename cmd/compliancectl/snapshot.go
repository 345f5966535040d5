package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"compliance-monitor/internal/catalog"
	"compliance-monitor/internal/compliance"
	"compliance-monitor/internal/service"
	"compliance-monitor/internal/storage"
)

// snapshotFile is an offline inventory capture together with the rule
// configuration to evaluate it against.
type snapshotFile struct {
	Warehouses       []compliance.Warehouse       `yaml:"warehouses"`
	RetentionObjects []compliance.RetentionObject `yaml:"retention_objects"`
	Tags             []compliance.TagAssignment   `yaml:"tags"`
	AppliedRules     []appliedRuleEntry           `yaml:"applied_rules"`
	TagRules         []tagRuleEntry               `yaml:"tag_rules"`
	Whitelist        []whitelistEntry             `yaml:"whitelist"`
}

type appliedRuleEntry struct {
	RuleID    string   `yaml:"rule_id"`
	Threshold *float64 `yaml:"threshold"`
	Scope     string   `yaml:"scope"`
	TagName   *string  `yaml:"tag_name"`
	TagValue  *string  `yaml:"tag_value"`
}

type tagRuleEntry struct {
	TagName     string `yaml:"tag_name"`
	ObjectType  string `yaml:"object_type"`
	Description string `yaml:"description"`
}

type whitelistEntry struct {
	RuleID     string  `yaml:"rule_id"`
	ObjectType string  `yaml:"object_type"`
	ObjectName string  `yaml:"object_name"`
	TagName    *string `yaml:"tag_name"`
	Reason     string  `yaml:"reason"`
}

const cliActor = "compliancectl"

func loadSnapshot(path string) (snapshotFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshotFile{}, fmt.Errorf("read snapshot: %w", err)
	}
	return parseSnapshot(data)
}

func parseSnapshot(data []byte) (snapshotFile, error) {
	var snap snapshotFile
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return snapshotFile{}, fmt.Errorf("parse snapshot: %w", err)
	}
	for i := range snap.RetentionObjects {
		obj := &snap.RetentionObjects[i]
		t, ok := compliance.ParseObjectType(string(obj.ObjectType))
		if !ok || !t.IsInventoryType() || t == compliance.ObjectWarehouse {
			return snapshotFile{}, fmt.Errorf("retention_objects[%d]: unsupported object type %q", i, obj.ObjectType)
		}
		obj.ObjectType = t
	}
	for i := range snap.Tags {
		tag := &snap.Tags[i]
		t, ok := compliance.ParseObjectType(string(tag.ObjectType))
		if !ok || !t.IsInventoryType() {
			return snapshotFile{}, fmt.Errorf("tags[%d]: unsupported object type %q", i, tag.ObjectType)
		}
		tag.ObjectType = t
	}
	return snap, nil
}

// openSnapshot builds a service over snap. Rule configuration goes through the
// same validation the API applies, so a rejected entry fails the command.
func openSnapshot(ctx context.Context, cat catalog.Catalog, snap snapshotFile, opts service.Options) (*service.Service, error) {
	store := newSnapshotStore(cat, snap)
	svc := service.New(store, nil, opts)
	for i, entry := range snap.AppliedRules {
		_, err := svc.ApplyRule(ctx, compliance.ApplyRequest{
			RuleID:    strings.TrimSpace(entry.RuleID),
			Threshold: entry.Threshold,
			Scope:     compliance.Scope(entry.Scope),
			TagName:   entry.TagName,
			TagValue:  entry.TagValue,
			AppliedBy: cliActor,
		})
		if err != nil {
			return nil, fmt.Errorf("applied_rules[%d] %s: %w", i, entry.RuleID, err)
		}
	}
	for i, entry := range snap.TagRules {
		_, err := svc.ApplyTagRule(ctx, compliance.TagRule{
			TagName:     entry.TagName,
			ObjectType:  compliance.ObjectType(entry.ObjectType),
			Description: entry.Description,
			AppliedBy:   cliActor,
		})
		if err != nil {
			return nil, fmt.Errorf("tag_rules[%d] %s: %w", i, entry.TagName, err)
		}
	}
	for i, entry := range snap.Whitelist {
		_, err := svc.AddToWhitelist(ctx, compliance.WhitelistEntry{
			RuleID:        entry.RuleID,
			ObjectType:    compliance.ObjectType(entry.ObjectType),
			ObjectName:    entry.ObjectName,
			TagName:       entry.TagName,
			Reason:        entry.Reason,
			WhitelistedBy: cliActor,
		})
		if err != nil {
			return nil, fmt.Errorf("whitelist[%d] %s: %w", i, entry.ObjectName, err)
		}
	}
	return svc, nil
}

// snapshotStore keeps a snapshot file and its rule configuration in memory.
type snapshotStore struct {
	catalog   catalog.Catalog
	snap      snapshotFile
	nextID    int64
	applied   []compliance.AppliedRule
	tagRules  []compliance.TagRule
	whitelist []compliance.WhitelistEntry
	now       func() time.Time
}

func newSnapshotStore(cat catalog.Catalog, snap snapshotFile) *snapshotStore {
	return &snapshotStore{
		catalog: cat,
		snap:    snap,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *snapshotStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *snapshotStore) ListRules(ctx context.Context, activeOnly bool) ([]compliance.Rule, error) {
	if activeOnly {
		return s.catalog.ActiveRules(), nil
	}
	return append([]compliance.Rule(nil), s.catalog.Rules...), nil
}

func (s *snapshotStore) GetRule(ctx context.Context, id string) (compliance.Rule, error) {
	rule, err := s.catalog.Lookup(id)
	if err != nil {
		return compliance.Rule{}, storage.ErrNotFound
	}
	return rule, nil
}

func (s *snapshotStore) ListAppliedRules(ctx context.Context, activeOnly bool) ([]compliance.AppliedRule, error) {
	out := []compliance.AppliedRule{}
	for _, r := range s.applied {
		if !activeOnly || r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *snapshotStore) ApplyRule(ctx context.Context, rule compliance.AppliedRule, supersede []int64) (compliance.AppliedRule, error) {
	for _, id := range supersede {
		_ = s.DeactivateAppliedRule(ctx, id)
	}
	rule.ID = s.id()
	rule.AppliedAt = s.now()
	rule.Active = true
	s.applied = append(s.applied, rule)
	return rule, nil
}

func (s *snapshotStore) DeactivateAppliedRule(ctx context.Context, id int64) error {
	for i := range s.applied {
		if s.applied[i].ID == id && s.applied[i].Active {
			s.applied[i].Active = false
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *snapshotStore) ListTagRules(ctx context.Context, activeOnly bool) ([]compliance.TagRule, error) {
	out := []compliance.TagRule{}
	for _, r := range s.tagRules {
		if !activeOnly || r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *snapshotStore) ApplyTagRule(ctx context.Context, rule compliance.TagRule) (compliance.TagRule, error) {
	rule.ID = s.id()
	rule.AppliedAt = s.now()
	s.tagRules = append(s.tagRules, rule)
	return rule, nil
}

func (s *snapshotStore) DeactivateTagRule(ctx context.Context, id int64) error {
	for i := range s.tagRules {
		if s.tagRules[i].ID == id && s.tagRules[i].Active {
			s.tagRules[i].Active = false
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *snapshotStore) ListWhitelist(ctx context.Context, objectType compliance.ObjectType) ([]compliance.WhitelistEntry, error) {
	out := []compliance.WhitelistEntry{}
	for _, e := range s.whitelist {
		if e.Active && (objectType == "" || e.ObjectType == objectType) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *snapshotStore) AddWhitelistEntry(ctx context.Context, entry compliance.WhitelistEntry) (compliance.WhitelistEntry, error) {
	entry.ID = s.id()
	entry.WhitelistedAt = s.now()
	if rule, err := s.catalog.Lookup(entry.RuleID); err == nil {
		entry.RuleName = rule.Name
	}
	s.whitelist = append(s.whitelist, entry)
	return entry, nil
}

func (s *snapshotStore) RemoveWhitelistEntry(ctx context.Context, id int64) error {
	n, _ := s.RemoveWhitelistEntries(ctx, []int64{id})
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *snapshotStore) RemoveWhitelistEntries(ctx context.Context, ids []int64) (int64, error) {
	var removed int64
	for _, id := range ids {
		for i := range s.whitelist {
			if s.whitelist[i].ID == id && s.whitelist[i].Active {
				s.whitelist[i].Active = false
				removed++
			}
		}
	}
	return removed, nil
}

func (s *snapshotStore) LatestWarehouses(ctx context.Context) ([]compliance.Warehouse, error) {
	return append([]compliance.Warehouse(nil), s.snap.Warehouses...), nil
}

func (s *snapshotStore) LatestRetentionObjects(ctx context.Context, objectType compliance.ObjectType) ([]compliance.RetentionObject, error) {
	out := []compliance.RetentionObject{}
	for _, o := range s.snap.RetentionObjects {
		if objectType == "" || o.ObjectType == objectType {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *snapshotStore) LatestTagAssignments(ctx context.Context) ([]compliance.TagAssignment, error) {
	return append([]compliance.TagAssignment(nil), s.snap.Tags...), nil
}

// ListRefreshRuns is empty; a snapshot file has no refresh history.
func (s *snapshotStore) ListRefreshRuns(ctx context.Context, source string, limit int) ([]storage.RefreshRun, error) {
	return []storage.RefreshRun{}, nil
}
