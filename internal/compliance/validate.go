package compliance

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicate      = errors.New("duplicate active entry")
	ErrInvalidScope   = errors.New("invalid scope")
	ErrUnknownRule    = errors.New("unknown rule")
	ErrInvalidInput   = errors.New("invalid input")
	ErrOverrideDenied = errors.New("threshold override not allowed")
)

type ErrorDetail struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
	Hint    string `json:"hint,omitempty"`
}

// ValidationError rejects a write before it reaches storage.
type ValidationError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	RuleID     string        `json:"ruleId,omitempty"`
	ObjectType ObjectType    `json:"objectType,omitempty"`
	ObjectName string        `json:"objectName,omitempty"`
	Details    []ErrorDetail `json:"details,omitempty"`

	kind error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.RuleID != "" {
		fmt.Fprintf(&b, " (rule %s", e.RuleID)
		if e.ObjectName != "" {
			fmt.Fprintf(&b, ", %s %s", e.ObjectType, e.ObjectName)
		}
		b.WriteString(")")
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return e.kind
}

// DuplicateError builds the error returned when an active entry already exists.
func DuplicateError(message, ruleID string, objectType ObjectType, objectName string) *ValidationError {
	return &ValidationError{
		Code:       "DUPLICATE",
		Message:    message,
		RuleID:     ruleID,
		ObjectType: objectType,
		ObjectName: objectName,
		kind:       ErrDuplicate,
	}
}

// ApplyRequest asks for a catalog rule to be activated.
type ApplyRequest struct {
	RuleID    string   `json:"ruleId" validate:"required"`
	Threshold *float64 `json:"thresholdValue"`
	Scope     Scope    `json:"scope"`
	TagName   *string  `json:"tagName"`
	TagValue  *string  `json:"tagValue"`
	AppliedBy string   `json:"appliedBy"`
}

// ValidateApply checks req against its catalog rule and returns the applied rule to
// insert. rule is nil when the id is not in the catalog.
func ValidateApply(rule *Rule, req ApplyRequest) (AppliedRule, error) {
	if rule == nil {
		return AppliedRule{}, &ValidationError{Code: "RULE_NOT_FOUND", Message: "rule is not in the catalog", RuleID: req.RuleID, kind: ErrUnknownRule}
	}
	var details []ErrorDetail
	if !rule.Active {
		details = append(details, ErrorDetail{Field: "ruleId", Problem: "inactive", Hint: "Only active catalog rules can be applied"})
	}
	if rule.TargetType == ObjectTag {
		details = append(details, ErrorDetail{Field: "ruleId", Problem: "tag rule", Hint: "Tag presence is configured through tag rules"})
	}

	threshold := rule.DefaultThreshold
	if req.Threshold != nil {
		if rule.DefaultThreshold != nil && !rule.AllowOverride && *req.Threshold != *rule.DefaultThreshold {
			return AppliedRule{}, &ValidationError{
				Code:    "THRESHOLD_LOCKED",
				Message: "rule does not allow overriding its default threshold",
				RuleID:  rule.ID,
				Details: []ErrorDetail{{Field: "thresholdValue", Problem: "override denied", Hint: fmt.Sprintf("Use %s", formatNumber(*rule.DefaultThreshold))}},
				kind:    ErrOverrideDenied,
			}
		}
		threshold = req.Threshold
	}
	if threshold == nil {
		details = append(details, ErrorDetail{Field: "thresholdValue", Problem: "missing", Hint: "Rule has no default threshold"})
	}

	scope := Scope(strings.ToUpper(strings.TrimSpace(string(req.Scope))))
	if scope == "" {
		scope = ScopeAll
	}
	tagName := trimmed(req.TagName)
	tagValue := trimmed(req.TagValue)
	switch scope {
	case ScopeAll:
		tagName, tagValue = nil, nil
	case ScopeTagBased:
		if tagName == nil {
			return AppliedRule{}, &ValidationError{
				Code:    "SCOPE_INVALID",
				Message: "tag-based scope requires a tag name",
				RuleID:  rule.ID,
				Details: []ErrorDetail{{Field: "tagName", Problem: "missing", Hint: "Provide the tag that selects objects"}},
				kind:    ErrInvalidScope,
			}
		}
	default:
		return AppliedRule{}, &ValidationError{
			Code:    "SCOPE_INVALID",
			Message: fmt.Sprintf("unknown scope %q", req.Scope),
			RuleID:  rule.ID,
			Details: []ErrorDetail{{Field: "scope", Problem: "invalid", Hint: "Use ALL or TAG_BASED"}},
			kind:    ErrInvalidScope,
		}
	}

	if len(details) > 0 {
		return AppliedRule{}, &ValidationError{Code: "RULE_INVALID", Message: "rule cannot be applied", RuleID: rule.ID, Details: details, kind: ErrInvalidInput}
	}
	return AppliedRule{
		Rule:      *rule,
		Threshold: *threshold,
		Scope:     scope,
		TagName:   tagName,
		TagValue:  tagValue,
		AppliedBy: req.AppliedBy,
		Active:    true,
	}, nil
}

// Supersedes returns the ids of active applied rules that candidate replaces:
// same rule, scope, tag name and tag value.
func Supersedes(existing []AppliedRule, candidate AppliedRule) []int64 {
	ids := []int64{}
	for _, rule := range existing {
		if !rule.Active || !strings.EqualFold(rule.Rule.ID, candidate.Rule.ID) || rule.Scope != candidate.Scope {
			continue
		}
		if shortOrEmpty(rule.TagName) != shortOrEmpty(candidate.TagName) || valueOrEmpty(rule.TagValue) != valueOrEmpty(candidate.TagValue) {
			continue
		}
		ids = append(ids, rule.ID)
	}
	return ids
}

// ValidateTagRule normalizes rule and rejects a second active rule for the same
// tag and object type.
func ValidateTagRule(existing []TagRule, rule TagRule) (TagRule, error) {
	var details []ErrorDetail
	rule.TagName = strings.TrimSpace(rule.TagName)
	if ShortTagName(rule.TagName) == "" {
		details = append(details, ErrorDetail{Field: "tagName", Problem: "missing", Hint: "Provide the required tag"})
	}
	objectType, ok := ParseObjectType(string(rule.ObjectType))
	if !ok || !objectType.IsInventoryType() {
		details = append(details, ErrorDetail{Field: "objectType", Problem: "invalid", Hint: "Use WAREHOUSE, DATABASE, SCHEMA or TABLE"})
	}
	if len(details) > 0 {
		return TagRule{}, &ValidationError{Code: "TAG_RULE_INVALID", Message: "tag rule failed validation", Details: details, kind: ErrInvalidInput}
	}
	rule.ObjectType = objectType
	for _, other := range existing {
		if other.Active && other.ObjectType == objectType && ShortTagName(other.TagName) == ShortTagName(rule.TagName) {
			return TagRule{}, DuplicateError(fmt.Sprintf("tag %s is already required on %s objects", rule.TagName, objectType), MissingTagRuleID, objectType, "")
		}
	}
	rule.Active = true
	return rule, nil
}

// ValidateWhitelistEntry normalizes entry and rejects it when an active entry with
// the same key exists.
func ValidateWhitelistEntry(existing []WhitelistEntry, entry WhitelistEntry) (WhitelistEntry, error) {
	var details []ErrorDetail
	entry.RuleID = strings.ToUpper(strings.TrimSpace(entry.RuleID))
	entry.ObjectName = strings.TrimSpace(entry.ObjectName)
	entry.Reason = strings.TrimSpace(entry.Reason)
	entry.TagName = trimmed(entry.TagName)
	if entry.RuleID == "" {
		details = append(details, ErrorDetail{Field: "ruleId", Problem: "missing"})
	}
	objectType, ok := ParseObjectType(string(entry.ObjectType))
	if !ok || !objectType.IsInventoryType() {
		details = append(details, ErrorDetail{Field: "objectType", Problem: "invalid", Hint: "Use WAREHOUSE, DATABASE, SCHEMA or TABLE"})
	}
	if entry.ObjectName == "" {
		details = append(details, ErrorDetail{Field: "objectName", Problem: "missing"})
	}
	if entry.Reason == "" {
		details = append(details, ErrorDetail{Field: "reason", Problem: "missing", Hint: "Explain why the violation is accepted"})
	}
	if entry.RuleID == MissingTagRuleID && entry.TagName == nil {
		details = append(details, ErrorDetail{Field: "tagName", Problem: "missing", Hint: "Tag violations are whitelisted per tag"})
	}
	if len(details) > 0 {
		return WhitelistEntry{}, &ValidationError{Code: "WHITELIST_INVALID", Message: "whitelist entry failed validation", RuleID: entry.RuleID, ObjectName: entry.ObjectName, Details: details, kind: ErrInvalidInput}
	}
	entry.ObjectType = objectType
	if NewWhitelist(existing).Contains(entry.Key()) {
		return WhitelistEntry{}, DuplicateError("violation is already whitelisted", entry.RuleID, entry.ObjectType, entry.ObjectName)
	}
	entry.Active = true
	return entry, nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func shortOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return ShortTagName(*value)
}

func valueOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
