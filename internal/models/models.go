package models

import (
	"time"
)

// Alert severity levels.
const (
	AlertSeverityInfo     = "info"
	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

// Conversation channels.
const (
	ChannelEmail  = "email"
	ChannelSMS    = "sms"
	ChannelForm   = "form"
	ChannelSystem = "system"
)

// Message sender / message types.
const (
	SenderBusiness = "business"
	SenderContact  = "contact"
	SenderSystem   = "system"

	MessageTypeManual    = "manual"
	MessageTypeAutomated = "automated"
)

// Alert is a workspace-level notification raised by automation or operators.
type Alert struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID uint      `gorm:"index;not null" json:"workspace_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Message     string    `gorm:"type:text" json:"message"`
	Severity    string    `gorm:"size:20;not null;default:'info'" json:"severity"` // info, warning, critical
	IsRead      bool      `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Conversation is a thread with one contact on one channel.
type Conversation struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	WorkspaceID    uint       `gorm:"index;not null" json:"workspace_id"`
	ContactID      uint       `gorm:"index;not null" json:"contact_id"`
	Channel        string     `gorm:"size:20;not null;default:'email'" json:"channel"`
	Subject        string     `gorm:"size:500" json:"subject"`
	IsRead         bool       `gorm:"not null;default:false" json:"is_read"`
	ManualOverride bool       `gorm:"not null;default:false" json:"manual_override"` // a human has taken over the thread
	LastMessageAt  *time.Time `gorm:"index" json:"last_message_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// Message belongs to a Conversation.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID    uint      `gorm:"index;not null" json:"workspace_id"`
	ConversationID uint      `gorm:"index;not null" json:"conversation_id"`
	Content        string    `gorm:"type:text" json:"content"`
	SenderType     string    `gorm:"size:20" json:"sender_type"`  // business, contact, system
	MessageType    string    `gorm:"size:30" json:"message_type"` // manual, automated, ...
	CreatedBy      *uint     `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// InternalMessage is a team chat line inside a workspace.
type InternalMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID uint      `gorm:"index:idx_internal_messages_ws_created,priority:1;not null" json:"workspace_id"`
	SenderID    uint      `gorm:"index;not null" json:"sender_id"`
	SenderName  string    `gorm:"size:255" json:"sender_name"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	CreatedAt   time.Time `gorm:"index:idx_internal_messages_ws_created,priority:2" json:"created_at"`
}

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Alert{},
		&Conversation{},
		&Message{},
		&InternalMessage{},
		&AuditRecord{},
		&RuleToggle{},
	}
}
