package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"coreops/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// InternalMessageDTO is the wire shape of a team chat message.
type InternalMessageDTO struct {
	ID         uint      `json:"id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	SenderID   uint      `json:"sender_id"`
	SenderName string    `json:"sender_name"`
}

func toInternalMessageDTO(m models.InternalMessage) InternalMessageDTO {
	name := m.SenderName
	if name == "" {
		name = "Unknown"
	}
	return InternalMessageDTO{ID: m.ID, Content: m.Content, CreatedAt: m.CreatedAt, SenderID: m.SenderID, SenderName: name}
}

// Sender identifies who is posting.
type Sender struct {
	WorkspaceID uint
	UserID      uint
	Name        string
}

// InternalMessageService persists team chat and fans new messages out
// through the hub.
type InternalMessageService struct {
	db        *gorm.DB
	hub       *ConnectionHub
	maxLength int
	logger    *logrus.Logger
}

func NewInternalMessageService(db *gorm.DB, hub *ConnectionHub, maxLength int, logger *logrus.Logger) *InternalMessageService {
	if logger == nil {
		logger = logrus.New()
	}
	if maxLength <= 0 {
		maxLength = 5000
	}
	return &InternalMessageService{db: db, hub: hub, maxLength: maxLength, logger: logger}
}

// List returns the latest limit messages in chronological order.
func (s *InternalMessageService) List(ctx context.Context, workspaceID uint, limit int) ([]InternalMessageDTO, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	var msgs []models.InternalMessage
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list internal messages: %w", err)
	}
	out := make([]InternalMessageDTO, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = toInternalMessageDTO(m)
	}
	return out, nil
}

// Send validates, rate limits, stores and broadcasts one message. The sender
// is excluded from the broadcast; it gets the message in the response.
func (s *InternalMessageService) Send(ctx context.Context, from Sender, content string) (*InternalMessageDTO, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > s.maxLength {
		return nil, fmt.Errorf("%w (max %d chars)", ErrMessageTooLong, s.maxLength)
	}
	if !s.hub.CheckRateLimit(from.WorkspaceID, from.UserID) {
		return nil, ErrRateLimited
	}

	msg := models.InternalMessage{
		WorkspaceID: from.WorkspaceID,
		SenderID:    from.UserID,
		SenderName:  from.Name,
		Content:     content,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("save internal message: %w", err)
	}

	dto := toInternalMessageDTO(msg)
	n := s.hub.Broadcast(from.WorkspaceID, EventNewMessage, dto, from.UserID)
	s.logger.WithFields(logrus.Fields{"workspace_id": from.WorkspaceID, "user_id": from.UserID, "delivered": n}).
		Debug("internal message broadcast")
	return &dto, nil
}
