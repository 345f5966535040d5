package storage

import (
	"time"

	"compliance-monitor/internal/compliance"
)

// Snapshot is one point-in-time capture of a source's inventory.
type Snapshot struct {
	Source           string
	CapturedAt       time.Time
	Warehouses       []compliance.Warehouse
	RetentionObjects []compliance.RetentionObject
	Tags             []compliance.TagAssignment
}

// RefreshRun records one execution of an inventory refresh.
type RefreshRun struct {
	RunID            string     `json:"runId"`
	Source           string     `json:"source"`
	Trigger          string     `json:"trigger"`
	Status           string     `json:"status"`
	Warehouses       int        `json:"warehouses"`
	RetentionObjects int        `json:"retentionObjects"`
	Tags             int        `json:"tags"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

const (
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)
