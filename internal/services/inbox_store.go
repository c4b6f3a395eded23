package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coreops/internal/models"

	"gorm.io/gorm"
)

// InboxStore is the slice of the inbox/alert persistence the automation
// engine writes to.
type InboxStore interface {
	HasManualOverride(ctx context.Context, workspaceID, contactID uint) (bool, error)
	CreateAlert(ctx context.Context, alert *models.Alert) error
	// AppendSystemMessage finds the contact's most recent conversation on
	// channel (creating one with subject if absent), appends body as a system
	// message and bumps last_message_at.
	AppendSystemMessage(ctx context.Context, workspaceID, contactID uint, channel, subject, body string) (*models.Conversation, error)
}

type GormInboxStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormInboxStore(db *gorm.DB) *GormInboxStore {
	return &GormInboxStore{db: db, now: time.Now}
}

func (s *GormInboxStore) HasManualOverride(ctx context.Context, workspaceID, contactID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("workspace_id = ? AND contact_id = ? AND manual_override = ?", workspaceID, contactID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check manual override: %w", err)
	}
	return count > 0, nil
}

func (s *GormInboxStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (s *GormInboxStore) AppendSystemMessage(ctx context.Context, workspaceID, contactID uint, channel, subject, body string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		err := tx.Where("workspace_id = ? AND contact_id = ? AND channel = ?", workspaceID, contactID, channel).
			Order("created_at DESC, id DESC").
			First(&conv).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			conv = models.Conversation{
				WorkspaceID:   workspaceID,
				ContactID:     contactID,
				Channel:       channel,
				Subject:       subject,
				LastMessageAt: &now,
			}
			if err := tx.Create(&conv).Error; err != nil {
				return fmt.Errorf("create conversation: %w", err)
			}
		case err != nil:
			return fmt.Errorf("find conversation: %w", err)
		}

		msg := models.Message{
			WorkspaceID:    workspaceID,
			ConversationID: conv.ID,
			Content:        body,
			SenderType:     models.SenderSystem,
			MessageType:    models.MessageTypeAutomated,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("create system message: %w", err)
		}

		conv.LastMessageAt = &now
		conv.IsRead = false
		return tx.Model(&conv).Updates(map[string]interface{}{
			"last_message_at": now,
			"is_read":         false,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
