package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit record statuses.
const (
	AuditStatusPending = "pending"
	AuditStatusSuccess = "success"
	AuditStatusError   = "error"
	AuditStatusSkipped = "skipped"
)

// Audit record event types.
const (
	EventAutomationStarted  = "automation_started"
	EventAutomationExecuted = "automation_executed"
	EventAutomationFailed   = "automation_failed"
	EventAutomationSkipped  = "automation_skipped"
	EventAutomationError    = "automation_error"
)

// AuditRecord is the append-only trail of automation executions.
// Only the pending -> terminal transition ever updates a row.
type AuditRecord struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	WorkspaceID       uint           `gorm:"not null;index:idx_audit_ws_created,priority:1;index:idx_audit_ws_key,priority:1" json:"workspace_id"`
	EventType         string         `gorm:"size:100;not null;index" json:"event_type"`
	Trigger           string         `gorm:"size:100" json:"trigger"`
	Source            string         `gorm:"size:100;index" json:"source"` // automation.<rule_key>
	Status            string         `gorm:"size:20;not null;index" json:"status"`
	IdempotencyKey    string         `gorm:"size:191;index:idx_audit_ws_key,priority:2" json:"idempotency_key,omitempty"`
	Payload           datatypes.JSON `json:"payload,omitempty"`
	Result            string         `gorm:"type:text" json:"result"`
	ExecutionMs       *int64         `json:"execution_ms,omitempty"`
	ActionCount       int            `gorm:"not null;default:0" json:"action_count"`
	FailedActionCount int            `gorm:"not null;default:0" json:"failed_action_count"`
	CreatedAt         time.Time      `gorm:"index:idx_audit_ws_created,priority:2" json:"created_at"`
}

func (AuditRecord) TableName() string { return "event_logs" }

// RuleToggle persists a per-workspace override for a rule key or a feature
// flag (stored under "feature:<name>"). Absent rows mean enabled.
type RuleToggle struct {
	WorkspaceID uint      `gorm:"primaryKey;autoIncrement:false" json:"workspace_id"`
	Key         string    `gorm:"column:toggle_key;primaryKey;size:150" json:"key"`
	Enabled     bool      `gorm:"not null" json:"enabled"`
	UpdatedAt   time.Time `json:"updated_at"`
}
