package service

import (
	"context"
	"fmt"
	"log/slog"

	"compliance-monitor/internal/compliance"
	"compliance-monitor/internal/metrics"
)

// Report carries the summary of every evaluated object and the filtered rows.
type Report[T compliance.Result] struct {
	Summary compliance.Summary                           `json:"summary"`
	ByType  map[compliance.ObjectType]compliance.Summary `json:"byType"`
	Results []T                                          `json:"results"`
}

func newReport[T compliance.Result](all []T, f compliance.Filter) Report[T] {
	return Report[T]{
		Summary: compliance.Summarize(all),
		ByType:  compliance.SummarizeByType(all),
		Results: compliance.Apply(all, f),
	}
}

type ruleSet struct {
	rules     []compliance.AppliedRule
	tagRules  []compliance.TagRule
	tags      []compliance.TagAssignment
	whitelist []compliance.WhitelistEntry
}

func (s *Service) loadRuleSet(ctx context.Context, withTagRules bool) (ruleSet, error) {
	var set ruleSet
	var err error
	if withTagRules {
		if set.tagRules, err = s.store.ListTagRules(ctx, true); err != nil {
			return ruleSet{}, fmt.Errorf("list tag rules: %w", err)
		}
	} else if set.rules, err = s.store.ListAppliedRules(ctx, true); err != nil {
		return ruleSet{}, fmt.Errorf("list applied rules: %w", err)
	}
	if set.tags, err = s.store.LatestTagAssignments(ctx); err != nil {
		return ruleSet{}, fmt.Errorf("load tags: %w", err)
	}
	if set.whitelist, err = s.store.ListWhitelist(ctx, ""); err != nil {
		return ruleSet{}, fmt.Errorf("list whitelist: %w", err)
	}
	return set, nil
}

func (s *Service) evaluateWarehouses(ctx context.Context) ([]compliance.ObjectCompliance, error) {
	warehouses, err := s.store.LatestWarehouses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load warehouses: %w", err)
	}
	set, err := s.loadRuleSet(ctx, false)
	if err != nil {
		return nil, err
	}
	return s.evaluator.Evaluate(compliance.Warehouses(warehouses), set.rules, set.tags, set.whitelist), nil
}

func (s *Service) evaluateRetention(ctx context.Context, objectType compliance.ObjectType) ([]compliance.ObjectCompliance, error) {
	if err := checkRetentionType(objectType); err != nil {
		return nil, err
	}
	objects, err := s.store.LatestRetentionObjects(ctx, objectType)
	if err != nil {
		return nil, fmt.Errorf("load retention objects: %w", err)
	}
	set, err := s.loadRuleSet(ctx, false)
	if err != nil {
		return nil, err
	}
	return s.evaluator.Evaluate(compliance.RetentionObjects(objects), set.rules, set.tags, set.whitelist), nil
}

func (s *Service) evaluateTags(ctx context.Context, objectType compliance.ObjectType) ([]compliance.ObjectTagCompliance, error) {
	if objectType != "" && !objectType.IsInventoryType() {
		return nil, invalidObjectType(objectType, "Use WAREHOUSE, DATABASE, SCHEMA or TABLE")
	}
	var objects []compliance.Object
	if objectType == "" || objectType == compliance.ObjectWarehouse {
		warehouses, err := s.store.LatestWarehouses(ctx)
		if err != nil {
			return nil, fmt.Errorf("load warehouses: %w", err)
		}
		objects = append(objects, compliance.Warehouses(warehouses)...)
	}
	if objectType != compliance.ObjectWarehouse {
		retention, err := s.store.LatestRetentionObjects(ctx, objectType)
		if err != nil {
			return nil, fmt.Errorf("load retention objects: %w", err)
		}
		objects = append(objects, compliance.RetentionObjects(retention)...)
	}
	set, err := s.loadRuleSet(ctx, true)
	if err != nil {
		return nil, err
	}
	return s.evaluator.EvaluateTagPresence(objects, set.tags, set.tagRules, set.whitelist), nil
}

func (s *Service) WarehouseCompliance(ctx context.Context, f compliance.Filter) (Report[compliance.ObjectCompliance], error) {
	results, err := s.evaluateWarehouses(ctx)
	if err != nil {
		return Report[compliance.ObjectCompliance]{}, err
	}
	return newReport(results, f), nil
}

// RetentionCompliance evaluates databases, schemas and tables, or only objectType when set.
func (s *Service) RetentionCompliance(ctx context.Context, objectType compliance.ObjectType, f compliance.Filter) (Report[compliance.ObjectCompliance], error) {
	results, err := s.evaluateRetention(ctx, objectType)
	if err != nil {
		return Report[compliance.ObjectCompliance]{}, err
	}
	return newReport(results, f), nil
}

func (s *Service) TagCompliance(ctx context.Context, objectType compliance.ObjectType, f compliance.Filter) (Report[compliance.ObjectTagCompliance], error) {
	results, err := s.evaluateTags(ctx, objectType)
	if err != nil {
		return Report[compliance.ObjectTagCompliance]{}, err
	}
	return newReport(results, f), nil
}

// FixScript renders the batched remediation script for the filtered results of
// one evaluation. Whitelisted violations are never included.
func (s *Service) FixScript(ctx context.Context, evaluation string, objectType compliance.ObjectType, f compliance.Filter) (string, error) {
	switch evaluation {
	case metrics.EvaluationWarehouses:
		results, err := s.evaluateWarehouses(ctx)
		if err != nil {
			return "", err
		}
		return s.generator.FixScript(compliance.Apply(results, f)), nil
	case metrics.EvaluationRetention:
		results, err := s.evaluateRetention(ctx, objectType)
		if err != nil {
			return "", err
		}
		return s.generator.FixScript(compliance.Apply(results, f)), nil
	case metrics.EvaluationTags:
		results, err := s.evaluateTags(ctx, objectType)
		if err != nil {
			return "", err
		}
		return s.generator.TagFixScript(compliance.Apply(results, f)), nil
	default:
		return "", &compliance.ValidationError{
			Code:    "EVALUATION_INVALID",
			Message: fmt.Sprintf("unknown evaluation %q", evaluation),
			Details: []compliance.ErrorDetail{{Field: "evaluation", Problem: "invalid", Hint: "Use warehouses, retention or tags"}},
		}
	}
}

// Recompute evaluates everything against the latest snapshot and refreshes the
// compliance gauges.
func (s *Service) Recompute(ctx context.Context) error {
	warehouses, err := s.evaluateWarehouses(ctx)
	if err != nil {
		return err
	}
	retention, err := s.evaluateRetention(ctx, "")
	if err != nil {
		return err
	}
	tags, err := s.evaluateTags(ctx, "")
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.Observe(metrics.EvaluationWarehouses, compliance.SummarizeByType(warehouses))
		s.metrics.Observe(metrics.EvaluationRetention, compliance.SummarizeByType(retention))
		s.metrics.Observe(metrics.EvaluationTags, compliance.SummarizeByType(tags))
	}
	wh, rt, tg := compliance.Summarize(warehouses), compliance.Summarize(retention), compliance.Summarize(tags)
	s.logger.Info("compliance recomputed",
		slog.Int("warehouses_non_compliant", wh.NonCompliant),
		slog.Int("retention_non_compliant", rt.NonCompliant),
		slog.Int("tags_non_compliant", tg.NonCompliant),
	)
	return nil
}

func checkRetentionType(objectType compliance.ObjectType) error {
	switch objectType {
	case "", compliance.ObjectDatabase, compliance.ObjectSchema, compliance.ObjectTable:
		return nil
	default:
		return invalidObjectType(objectType, "Use DATABASE, SCHEMA or TABLE")
	}
}

func invalidObjectType(objectType compliance.ObjectType, hint string) error {
	return &compliance.ValidationError{
		Code:    "OBJECT_TYPE_INVALID",
		Message: fmt.Sprintf("unsupported object type %q", objectType),
		Details: []compliance.ErrorDetail{{Field: "objectType", Problem: "invalid", Hint: hint}},
	}
}
