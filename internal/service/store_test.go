package service

import (
	"context"
	"sync"
	"time"

	"compliance-monitor/internal/compliance"
	"compliance-monitor/internal/storage"
)

// memStore is an in-memory Store for service and API tests.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	rules      map[string]compliance.Rule
	applied    []compliance.AppliedRule
	tagRules   []compliance.TagRule
	whitelist  []compliance.WhitelistEntry
	warehouses []compliance.Warehouse
	retention  []compliance.RetentionObject
	tags       []compliance.TagAssignment
	runs       []storage.RefreshRun
	failWith   error
}

func newMemStore(rules ...compliance.Rule) *memStore {
	s := &memStore{rules: map[string]compliance.Rule{}}
	for _, r := range rules {
		s.rules[r.ID] = r
	}
	return s
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) ListRules(ctx context.Context, activeOnly bool) ([]compliance.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []compliance.Rule{}
	for _, r := range s.rules {
		if !activeOnly || r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) GetRule(ctx context.Context, id string) (compliance.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return compliance.Rule{}, s.failWith
	}
	r, ok := s.rules[id]
	if !ok {
		return compliance.Rule{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *memStore) ListAppliedRules(ctx context.Context, activeOnly bool) ([]compliance.AppliedRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []compliance.AppliedRule{}
	for _, r := range s.applied {
		if !activeOnly || r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ApplyRule(ctx context.Context, rule compliance.AppliedRule, supersede []int64) (compliance.AppliedRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range supersede {
		for i := range s.applied {
			if s.applied[i].ID == id {
				s.applied[i].Active = false
			}
		}
	}
	rule.ID = s.id()
	rule.AppliedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.applied = append(s.applied, rule)
	return rule, nil
}

func (s *memStore) DeactivateAppliedRule(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.applied {
		if s.applied[i].ID == id && s.applied[i].Active {
			s.applied[i].Active = false
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *memStore) ListTagRules(ctx context.Context, activeOnly bool) ([]compliance.TagRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []compliance.TagRule{}
	for _, r := range s.tagRules {
		if !activeOnly || r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ApplyTagRule(ctx context.Context, rule compliance.TagRule) (compliance.TagRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule.ID = s.id()
	s.tagRules = append(s.tagRules, rule)
	return rule, nil
}

func (s *memStore) DeactivateTagRule(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tagRules {
		if s.tagRules[i].ID == id && s.tagRules[i].Active {
			s.tagRules[i].Active = false
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *memStore) ListWhitelist(ctx context.Context, objectType compliance.ObjectType) ([]compliance.WhitelistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []compliance.WhitelistEntry{}
	for _, e := range s.whitelist {
		if e.Active && (objectType == "" || e.ObjectType == objectType) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) AddWhitelistEntry(ctx context.Context, entry compliance.WhitelistEntry) (compliance.WhitelistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.id()
	s.whitelist = append(s.whitelist, entry)
	return entry, nil
}

func (s *memStore) RemoveWhitelistEntry(ctx context.Context, id int64) error {
	n, _ := s.RemoveWhitelistEntries(ctx, []int64{id})
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *memStore) RemoveWhitelistEntries(ctx context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *memStore) LatestWarehouses(ctx context.Context) ([]compliance.Warehouse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	return append([]compliance.Warehouse(nil), s.warehouses...), nil
}

func (s *memStore) LatestRetentionObjects(ctx context.Context, objectType compliance.ObjectType) ([]compliance.RetentionObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []compliance.RetentionObject{}
	for _, o := range s.retention {
		if objectType == "" || o.ObjectType == objectType {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) LatestTagAssignments(ctx context.Context) ([]compliance.TagAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]compliance.TagAssignment(nil), s.tags...), nil
}

func (s *memStore) ListRefreshRuns(ctx context.Context, source string, limit int) ([]storage.RefreshRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []storage.RefreshRun{}
	for _, r := range s.runs {
		if source == "" || r.Source == source {
			out = append(out, r)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
}

func (p *recordingPublisher) Publish(subject string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, payload)
	return nil
}
