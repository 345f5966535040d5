package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"compliance-monitor/internal/bus"
	"compliance-monitor/internal/compliance"
	"compliance-monitor/internal/metrics"
	"compliance-monitor/internal/storage"
)

// Store is the persistence surface the service needs; *storage.Repository implements it.
type Store interface {
	ListRules(ctx context.Context, activeOnly bool) ([]compliance.Rule, error)
	GetRule(ctx context.Context, id string) (compliance.Rule, error)

	ListAppliedRules(ctx context.Context, activeOnly bool) ([]compliance.AppliedRule, error)
	ApplyRule(ctx context.Context, rule compliance.AppliedRule, supersede []int64) (compliance.AppliedRule, error)
	DeactivateAppliedRule(ctx context.Context, id int64) error

	ListTagRules(ctx context.Context, activeOnly bool) ([]compliance.TagRule, error)
	ApplyTagRule(ctx context.Context, rule compliance.TagRule) (compliance.TagRule, error)
	DeactivateTagRule(ctx context.Context, id int64) error

	ListWhitelist(ctx context.Context, objectType compliance.ObjectType) ([]compliance.WhitelistEntry, error)
	AddWhitelistEntry(ctx context.Context, entry compliance.WhitelistEntry) (compliance.WhitelistEntry, error)
	RemoveWhitelistEntry(ctx context.Context, id int64) error
	RemoveWhitelistEntries(ctx context.Context, ids []int64) (int64, error)

	LatestWarehouses(ctx context.Context) ([]compliance.Warehouse, error)
	LatestRetentionObjects(ctx context.Context, objectType compliance.ObjectType) ([]compliance.RetentionObject, error)
	LatestTagAssignments(ctx context.Context) ([]compliance.TagAssignment, error)
	ListRefreshRuns(ctx context.Context, source string, limit int) ([]storage.RefreshRun, error)
}

type Publisher interface {
	Publish(subject string, payload any) error
}

type Options struct {
	Evaluator compliance.Evaluator
	Generator compliance.Generator
	Metrics   *metrics.Compliance
	Logger    *slog.Logger
}

type Service struct {
	store     Store
	publisher Publisher
	evaluator compliance.Evaluator
	generator compliance.Generator
	metrics   *metrics.Compliance
	logger    *slog.Logger
	now       func() time.Time
}

// withGeneratorDefaults fills only the zero-valued fields of g.
func withGeneratorDefaults(g compliance.Generator) compliance.Generator {
	defaults := compliance.NewGenerator()
	if g.DefaultStatementTimeout == 0 {
		g.DefaultStatementTimeout = defaults.DefaultStatementTimeout
	}
	if g.ZeroTimeoutRuleIDs == nil {
		g.ZeroTimeoutRuleIDs = defaults.ZeroTimeoutRuleIDs
	}
	if g.TagPlaceholder == "" {
		g.TagPlaceholder = defaults.TagPlaceholder
	}
	if g.SnapshotSchema == "" {
		g.SnapshotSchema = defaults.SnapshotSchema
	}
	return g
}

func New(store Store, publisher Publisher, opts Options) *Service {
	if opts.Evaluator.Applicability == nil {
		opts.Evaluator = compliance.NewEvaluator(nil)
	}
	opts.Generator = withGeneratorDefaults(opts.Generator)
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		evaluator: opts.Evaluator,
		generator: opts.Generator,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListRules(ctx context.Context) ([]compliance.Rule, error) {
	return s.store.ListRules(ctx, true)
}

func (s *Service) ListAppliedRules(ctx context.Context) ([]compliance.AppliedRule, error) {
	return s.store.ListAppliedRules(ctx, true)
}

// ApplyRule validates req against the catalog, deactivates the active rule it
// replaces and stores the new one.
func (s *Service) ApplyRule(ctx context.Context, req compliance.ApplyRequest) (compliance.AppliedRule, error) {
	var catalogRule *compliance.Rule
	rule, err := s.store.GetRule(ctx, req.RuleID)
	switch {
	case err == nil:
		catalogRule = &rule
	case !errors.Is(err, storage.ErrNotFound):
		return compliance.AppliedRule{}, fmt.Errorf("load rule %s: %w", req.RuleID, err)
	}
	candidate, err := compliance.ValidateApply(catalogRule, req)
	if err != nil {
		return compliance.AppliedRule{}, err
	}
	existing, err := s.store.ListAppliedRules(ctx, true)
	if err != nil {
		return compliance.AppliedRule{}, fmt.Errorf("list applied rules: %w", err)
	}
	supersede := compliance.Supersedes(existing, candidate)
	saved, err := s.store.ApplyRule(ctx, candidate, supersede)
	if err != nil {
		return compliance.AppliedRule{}, err
	}
	s.publish(bus.SubjectRuleApplied, bus.RuleEvent{
		AppliedRuleID: saved.ID,
		RuleID:        saved.Rule.ID,
		Scope:         string(saved.Scope),
		TagName:       deref(saved.TagName),
		TagValue:      deref(saved.TagValue),
		Superseded:    supersede,
		Actor:         saved.AppliedBy,
		OccurredAt:    s.now(),
	})
	return saved, nil
}

func (s *Service) DeactivateRule(ctx context.Context, id int64, actor string) error {
	if err := s.store.DeactivateAppliedRule(ctx, id); err != nil {
		return err
	}
	s.publish(bus.SubjectRuleDeactivated, bus.RuleEvent{AppliedRuleID: id, Actor: actor, OccurredAt: s.now()})
	return nil
}

func (s *Service) ListTagRules(ctx context.Context) ([]compliance.TagRule, error) {
	return s.store.ListTagRules(ctx, true)
}

func (s *Service) ApplyTagRule(ctx context.Context, rule compliance.TagRule) (compliance.TagRule, error) {
	existing, err := s.store.ListTagRules(ctx, true)
	if err != nil {
		return compliance.TagRule{}, fmt.Errorf("list tag rules: %w", err)
	}
	valid, err := compliance.ValidateTagRule(existing, rule)
	if err != nil {
		return compliance.TagRule{}, err
	}
	saved, err := s.store.ApplyTagRule(ctx, valid)
	if err != nil {
		return compliance.TagRule{}, err
	}
	s.publish(bus.SubjectTagRuleApplied, bus.TagRuleEvent{
		TagRuleID:  saved.ID,
		TagName:    saved.TagName,
		ObjectType: string(saved.ObjectType),
		Actor:      saved.AppliedBy,
		OccurredAt: s.now(),
	})
	return saved, nil
}

func (s *Service) DeactivateTagRule(ctx context.Context, id int64, actor string) error {
	if err := s.store.DeactivateTagRule(ctx, id); err != nil {
		return err
	}
	s.publish(bus.SubjectTagRuleDeactivated, bus.TagRuleEvent{TagRuleID: id, Actor: actor, OccurredAt: s.now()})
	return nil
}

func (s *Service) ListWhitelist(ctx context.Context, objectType compliance.ObjectType) ([]compliance.WhitelistEntry, error) {
	return s.store.ListWhitelist(ctx, objectType)
}

// AddToWhitelist fails with a duplicate error when an active entry already
// covers the same rule, object and tag. The whitelist is left unchanged.
func (s *Service) AddToWhitelist(ctx context.Context, entry compliance.WhitelistEntry) (compliance.WhitelistEntry, error) {
	existing, err := s.store.ListWhitelist(ctx, "")
	if err != nil {
		return compliance.WhitelistEntry{}, fmt.Errorf("list whitelist: %w", err)
	}
	valid, err := compliance.ValidateWhitelistEntry(existing, entry)
	if err != nil {
		return compliance.WhitelistEntry{}, err
	}
	saved, err := s.store.AddWhitelistEntry(ctx, valid)
	if err != nil {
		return compliance.WhitelistEntry{}, err
	}
	s.publish(bus.SubjectWhitelistChanged, bus.WhitelistEvent{
		Action:     bus.WhitelistAdded,
		IDs:        []int64{saved.ID},
		RuleID:     saved.RuleID,
		ObjectType: string(saved.ObjectType),
		ObjectName: saved.ObjectName,
		Actor:      saved.WhitelistedBy,
		OccurredAt: s.now(),
	})
	return saved, nil
}

func (s *Service) RemoveFromWhitelist(ctx context.Context, id int64, actor string) error {
	if err := s.store.RemoveWhitelistEntry(ctx, id); err != nil {
		return err
	}
	s.publish(bus.SubjectWhitelistChanged, bus.WhitelistEvent{Action: bus.WhitelistRemoved, IDs: []int64{id}, Actor: actor, OccurredAt: s.now()})
	return nil
}

// RemoveWhitelistEntries deactivates every listed entry and reports how many were active.
func (s *Service) RemoveWhitelistEntries(ctx context.Context, ids []int64, actor string) (int64, error) {
	if len(ids) == 0 {
		return 0, &compliance.ValidationError{
			Code:    "WHITELIST_INVALID",
			Message: "no whitelist entries selected",
			Details: []compliance.ErrorDetail{{Field: "ids", Problem: "missing"}},
		}
	}
	removed, err := s.store.RemoveWhitelistEntries(ctx, ids)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.publish(bus.SubjectWhitelistChanged, bus.WhitelistEvent{Action: bus.WhitelistRemoved, IDs: ids, Actor: actor, OccurredAt: s.now()})
	}
	return removed, nil
}

// RequestRefresh asks the worker to refresh source now; an empty source means all.
func (s *Service) RequestRefresh(ctx context.Context, source, actor string) (bus.RefreshRequest, error) {
	req := bus.RefreshRequest{
		RequestID:   uuid.NewString(),
		Source:      source,
		RequestedBy: actor,
		RequestedAt: s.now(),
	}
	if s.publisher == nil {
		return bus.RefreshRequest{}, errors.New("event bus not configured")
	}
	if err := s.publisher.Publish(bus.SubjectRefreshRequested, req); err != nil {
		return bus.RefreshRequest{}, fmt.Errorf("publish refresh request: %w", err)
	}
	return req, nil
}

func (s *Service) RefreshRuns(ctx context.Context, source string, limit int) ([]storage.RefreshRun, error) {
	return s.store.ListRefreshRuns(ctx, source, limit)
}

// publish reports failures in the log only; the write has already committed.
func (s *Service) publish(subject string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(subject, payload); err != nil {
		s.logger.Warn("failed to publish event", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
