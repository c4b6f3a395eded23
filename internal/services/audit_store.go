package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coreops/internal/models"

	"gorm.io/gorm"
)

// AuditStore persists automation execution records. Records are append-only
// apart from the pending -> terminal transition done by Finish.
type AuditStore interface {
	// HasSuccess reports whether a success record with this idempotency key
	// exists in the workspace.
	HasSuccess(ctx context.Context, workspaceID uint, key string) (bool, error)
	// Begin inserts rec with status pending and fills rec.ID.
	Begin(ctx context.Context, rec *models.AuditRecord) error
	// Finish writes the terminal fields of a pending record.
	Finish(ctx context.Context, rec *models.AuditRecord) error
	// Record inserts an already terminal record.
	Record(ctx context.Context, rec *models.AuditRecord) error
}

// AuditQuery filters the read surface.
type AuditQuery struct {
	WorkspaceID  uint
	EventType    string
	SourcePrefix string
	Since        *time.Time
	Until        *time.Time
	Skip         int
	Limit        int
}

// GormAuditStore is the AuditStore over the event_logs table.
type GormAuditStore struct {
	db *gorm.DB
}

func NewGormAuditStore(db *gorm.DB) *GormAuditStore {
	return &GormAuditStore{db: db}
}

func (s *GormAuditStore) HasSuccess(ctx context.Context, workspaceID uint, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&models.AuditRecord{}).
		Where("workspace_id = ? AND idempotency_key = ? AND status = ?", workspaceID, key, models.AuditStatusSuccess).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return count > 0, nil
}

func (s *GormAuditStore) Begin(ctx context.Context, rec *models.AuditRecord) error {
	rec.ID = 0
	rec.Status = models.AuditStatusPending
	if rec.EventType == "" {
		rec.EventType = models.EventAutomationStarted
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert pending audit record: %w", err)
	}
	return nil
}

func (s *GormAuditStore) Finish(ctx context.Context, rec *models.AuditRecord) error {
	if rec.ID == 0 {
		return s.Record(ctx, rec)
	}
	res := s.db.WithContext(ctx).Model(&models.AuditRecord{}).
		Where("id = ? AND status = ?", rec.ID, models.AuditStatusPending).
		Updates(map[string]interface{}{
			"event_type":          rec.EventType,
			"status":              rec.Status,
			"result":              rec.Result,
			"execution_ms":        rec.ExecutionMs,
			"action_count":        rec.ActionCount,
			"failed_action_count": rec.FailedActionCount,
		})
	if res.Error != nil {
		return fmt.Errorf("finish audit record %d: %w", rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("finish audit record %d: %w", rec.ID, ErrAuditRecordNotFound)
	}
	return nil
}

func (s *GormAuditStore) Record(ctx context.Context, rec *models.AuditRecord) error {
	rec.ID = 0
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// List returns one page of records, newest first, plus the total match count.
func (s *GormAuditStore) List(ctx context.Context, q AuditQuery) ([]models.AuditRecord, int64, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 50
	}
	if q.Skip < 0 {
		q.Skip = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.AuditRecord{}).Where("workspace_id = ?", q.WorkspaceID)
	if q.EventType != "" {
		tx = tx.Where("event_type = ?", q.EventType)
	}
	if q.SourcePrefix != "" {
		tx = tx.Where("LOWER(source) LIKE ?", strings.ToLower(q.SourcePrefix)+"%")
	}
	if q.Since != nil {
		tx = tx.Where("created_at >= ?", *q.Since)
	}
	if q.Until != nil {
		tx = tx.Where("created_at <= ?", *q.Until)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}
	var out []models.AuditRecord
	if err := tx.Order("created_at DESC, id DESC").Offset(q.Skip).Limit(q.Limit).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list audit records: %w", err)
	}
	return out, total, nil
}

// Get loads one record scoped to its workspace.
func (s *GormAuditStore) Get(ctx context.Context, workspaceID, id uint) (*models.AuditRecord, error) {
	var rec models.AuditRecord
	err := s.db.WithContext(ctx).Where("workspace_id = ? AND id = ?", workspaceID, id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAuditRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit record: %w", err)
	}
	return &rec, nil
}
