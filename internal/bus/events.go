package bus

import "time"

const (
	SubjectRuleApplied        = "compliance.rule.applied"
	SubjectRuleDeactivated    = "compliance.rule.deactivated"
	SubjectTagRuleApplied     = "compliance.tagrule.applied"
	SubjectTagRuleDeactivated = "compliance.tagrule.deactivated"
	SubjectWhitelistChanged   = "compliance.whitelist.changed"
	SubjectRefreshRequested   = "inventory.refresh.requested"
	SubjectInventoryRefreshed = "inventory.refreshed"
)

type RuleEvent struct {
	AppliedRuleID int64     `json:"applied_rule_id"`
	RuleID        string    `json:"rule_id"`
	Scope         string    `json:"scope,omitempty"`
	TagName       string    `json:"tag_name,omitempty"`
	TagValue      string    `json:"tag_value,omitempty"`
	Superseded    []int64   `json:"superseded,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type TagRuleEvent struct {
	TagRuleID  int64     `json:"tag_rule_id"`
	TagName    string    `json:"tag_name,omitempty"`
	ObjectType string    `json:"object_type,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	WhitelistAdded   = "added"
	WhitelistRemoved = "removed"
)

type WhitelistEvent struct {
	Action     string    `json:"action"`
	IDs        []int64   `json:"ids"`
	RuleID     string    `json:"rule_id,omitempty"`
	ObjectType string    `json:"object_type,omitempty"`
	ObjectName string    `json:"object_name,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RefreshRequest asks the worker to refresh one source now, or all sources
// when Source is empty.
type RefreshRequest struct {
	RequestID   string    `json:"request_id"`
	Source      string    `json:"source,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

type InventoryRefreshed struct {
	RunID            string    `json:"run_id"`
	Source           string    `json:"source"`
	Status           string    `json:"status"`
	Warehouses       int       `json:"warehouses"`
	RetentionObjects int       `json:"retention_objects"`
	Tags             int       `json:"tags"`
	Error            string    `json:"error,omitempty"`
	CompletedAt      time.Time `json:"completed_at"`
}
