package compliance

import (
	"strings"
	"time"
)

// ObjectType identifies the category of an inventory object.
type ObjectType string

const (
	ObjectWarehouse ObjectType = "WAREHOUSE"
	ObjectDatabase  ObjectType = "DATABASE"
	ObjectSchema    ObjectType = "SCHEMA"
	ObjectTable     ObjectType = "TABLE"

	// ObjectTag is only valid as a rule target; no inventory object has it.
	ObjectTag ObjectType = "TAG"
)

// ParseObjectType accepts any casing and returns false for unknown values.
func ParseObjectType(value string) (ObjectType, bool) {
	switch ObjectType(strings.ToUpper(strings.TrimSpace(value))) {
	case ObjectWarehouse:
		return ObjectWarehouse, true
	case ObjectDatabase:
		return ObjectDatabase, true
	case ObjectSchema:
		return ObjectSchema, true
	case ObjectTable:
		return ObjectTable, true
	case ObjectTag:
		return ObjectTag, true
	default:
		return "", false
	}
}

// IsInventoryType reports whether objects of this type can appear in an inventory snapshot.
func (t ObjectType) IsInventoryType() bool {
	switch t {
	case ObjectWarehouse, ObjectDatabase, ObjectSchema, ObjectTable:
		return true
	default:
		return false
	}
}

type Scope string

const (
	ScopeAll      Scope = "ALL"
	ScopeTagBased Scope = "TAG_BASED"
)

// MissingTagRuleID is the rule id recorded for tag-presence violations and their whitelist entries.
const MissingTagRuleID = "MISSING_TAG_VALUE"

// Rule is a catalog entry.
type Rule struct {
	ID               string     `json:"ruleId" yaml:"id"`
	Name             string     `json:"ruleName" yaml:"name"`
	Description      string     `json:"description" yaml:"description"`
	TargetType       ObjectType `json:"ruleType" yaml:"type"`
	Parameter        string     `json:"parameter" yaml:"parameter"`
	Operator         Operator   `json:"operator" yaml:"operator"`
	Unit             string     `json:"unit" yaml:"unit"`
	DefaultThreshold *float64   `json:"defaultThreshold,omitempty" yaml:"default_threshold"`
	AllowOverride    bool       `json:"allowOverride" yaml:"allow_override"`
	FixButton        bool       `json:"fixButton" yaml:"fix_button"`
	FixSQL           bool       `json:"fixSql" yaml:"fix_sql"`
	Active           bool       `json:"active" yaml:"active"`
}

// AppliedRule is an activated catalog rule. Rule holds the joined catalog row.
type AppliedRule struct {
	ID        int64     `json:"appliedRuleId"`
	Rule      Rule      `json:"rule"`
	Threshold float64   `json:"thresholdValue"`
	Scope     Scope     `json:"scope"`
	TagName   *string   `json:"tagName,omitempty"`
	TagValue  *string   `json:"tagValue,omitempty"`
	AppliedAt time.Time `json:"appliedAt"`
	AppliedBy string    `json:"appliedBy"`
	Active    bool      `json:"active"`
}

// TagRule requires a tag on every object of ObjectType.
type TagRule struct {
	ID          int64      `json:"appliedTagRuleId"`
	TagName     string     `json:"tagName"`
	ObjectType  ObjectType `json:"objectType"`
	Description string     `json:"description,omitempty"`
	AppliedAt   time.Time  `json:"appliedAt"`
	AppliedBy   string     `json:"appliedBy"`
	Active      bool       `json:"active"`
}

// TagAssignment is one tag observed on an object in the latest snapshot.
// TagName may be fully qualified (DB.SCHEMA.TAG).
type TagAssignment struct {
	ObjectType ObjectType `json:"objectType" yaml:"object_type"`
	ObjectName string     `json:"objectName" yaml:"object_name"`
	TagName    string     `json:"tagName" yaml:"tag_name"`
	TagValue   string     `json:"tagValue" yaml:"tag_value"`
}

type WhitelistEntry struct {
	ID            int64      `json:"whitelistId"`
	RuleID        string     `json:"ruleId"`
	RuleName      string     `json:"ruleName,omitempty"`
	AppliedRuleID *int64     `json:"appliedRuleId,omitempty"`
	ObjectType    ObjectType `json:"objectType"`
	ObjectName    string     `json:"objectName"`
	TagName       *string    `json:"tagName,omitempty"`
	Reason        string     `json:"reason"`
	WhitelistedBy string     `json:"whitelistedBy"`
	WhitelistedAt time.Time  `json:"whitelistedAt"`
	Active        bool       `json:"active"`
}

// Violation is computed on every evaluation pass and never stored.
type Violation struct {
	RuleID        string     `json:"ruleId"`
	RuleName      string     `json:"ruleName"`
	AppliedRuleID int64      `json:"appliedRuleId"`
	ObjectType    ObjectType `json:"objectType"`
	ObjectName    string     `json:"objectName"`
	Parameter     string     `json:"parameter"`
	CurrentValue  *float64   `json:"currentValue"`
	Threshold     float64    `json:"thresholdValue"`
	Operator      Operator   `json:"operator"`
	Unit          string     `json:"unit"`
	TagName       string     `json:"tagName,omitempty"`
	Description   string     `json:"description,omitempty"`
	FixButton     bool       `json:"hasFixButton"`
	FixSQL        bool       `json:"hasFixSql"`
	Whitelisted   bool       `json:"isWhitelisted"`
}

// RuleRef names a rule an object was checked against.
type RuleRef struct {
	RuleID        string `json:"ruleId"`
	RuleName      string `json:"ruleName"`
	AppliedRuleID int64  `json:"appliedRuleId"`
}

// ObjectCompliance is the evaluation result for one object.
type ObjectCompliance struct {
	Object          Object      `json:"-"`
	ObjectType      ObjectType  `json:"objectType"`
	ObjectName      string      `json:"objectName"`
	Owner           string      `json:"owner"`
	ApplicableRules []RuleRef   `json:"applicableRules"`
	Violations      []Violation `json:"violations"`
	CompliantRules  []RuleRef   `json:"compliantRules"`
}

// ActiveViolations returns the violations that are not whitelisted.
func (c ObjectCompliance) ActiveViolations() []Violation {
	return filterViolations(c.Violations, false)
}

func (c ObjectCompliance) WhitelistedViolations() []Violation {
	return filterViolations(c.Violations, true)
}

// NonCompliant is true when at least one violation is not whitelisted.
func (c ObjectCompliance) NonCompliant() bool {
	return hasActive(c.Violations)
}

// NoRulesApplicable distinguishes "nothing to check" from "compliant".
func (c ObjectCompliance) NoRulesApplicable() bool {
	return len(c.ApplicableRules) == 0
}

// ObjectTagCompliance is the tag-presence result for one object.
type ObjectTagCompliance struct {
	Object       Object      `json:"-"`
	ObjectType   ObjectType  `json:"objectType"`
	ObjectName   string      `json:"objectName"`
	Owner        string      `json:"owner"`
	AssignedTags []string    `json:"assignedTags"`
	CheckedRules []int64     `json:"checkedTagRules"`
	Violations   []Violation `json:"violations"`
}

func (c ObjectTagCompliance) ActiveViolations() []Violation {
	return filterViolations(c.Violations, false)
}

func (c ObjectTagCompliance) WhitelistedViolations() []Violation {
	return filterViolations(c.Violations, true)
}

func (c ObjectTagCompliance) NonCompliant() bool {
	return hasActive(c.Violations)
}

func (c ObjectTagCompliance) NoRulesApplicable() bool {
	return len(c.CheckedRules) == 0
}

func filterViolations(violations []Violation, whitelisted bool) []Violation {
	out := []Violation{}
	for _, v := range violations {
		if v.Whitelisted == whitelisted {
			out = append(out, v)
		}
	}
	return out
}

func hasActive(violations []Violation) bool {
	for _, v := range violations {
		if !v.Whitelisted {
			return true
		}
	}
	return false
}
