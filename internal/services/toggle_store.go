package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"coreops/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ToggleStore holds per-workspace boolean overrides for rule keys and feature
// flags. Absence of an override means enabled.
type ToggleStore interface {
	Get(ctx context.Context, workspaceID uint, key string) (enabled, found bool, err error)
	Set(ctx context.Context, workspaceID uint, key string, enabled bool) error
	Clear(ctx context.Context, workspaceID uint, key string) error
}

type toggleKey struct {
	workspaceID uint
	key         string
}

// MemoryToggleStore keeps overrides for the process lifetime.
type MemoryToggleStore struct {
	mu    sync.RWMutex
	items map[toggleKey]bool
}

func NewMemoryToggleStore() *MemoryToggleStore {
	return &MemoryToggleStore{items: make(map[toggleKey]bool)}
}

func (s *MemoryToggleStore) Get(_ context.Context, workspaceID uint, key string) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[toggleKey{workspaceID, key}]
	return v, ok, nil
}

func (s *MemoryToggleStore) Set(_ context.Context, workspaceID uint, key string, enabled bool) error {
	s.mu.Lock()
	s.items[toggleKey{workspaceID, key}] = enabled
	s.mu.Unlock()
	return nil
}

func (s *MemoryToggleStore) Clear(_ context.Context, workspaceID uint, key string) error {
	s.mu.Lock()
	delete(s.items, toggleKey{workspaceID, key})
	s.mu.Unlock()
	return nil
}

// GormToggleStore persists overrides in rule_toggles.
type GormToggleStore struct {
	db *gorm.DB
}

func NewGormToggleStore(db *gorm.DB) *GormToggleStore {
	return &GormToggleStore{db: db}
}

func (s *GormToggleStore) Get(ctx context.Context, workspaceID uint, key string) (bool, bool, error) {
	var row models.RuleToggle
	err := s.db.WithContext(ctx).Where("workspace_id = ? AND toggle_key = ?", workspaceID, key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("load toggle %s: %w", key, err)
	}
	return row.Enabled, true, nil
}

func (s *GormToggleStore) Set(ctx context.Context, workspaceID uint, key string, enabled bool) error {
	row := models.RuleToggle{WorkspaceID: workspaceID, Key: key, Enabled: enabled, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "toggle_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save toggle %s: %w", key, err)
	}
	return nil
}

func (s *GormToggleStore) Clear(ctx context.Context, workspaceID uint, key string) error {
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND toggle_key = ?", workspaceID, key).
		Delete(&models.RuleToggle{}).Error
	if err != nil {
		return fmt.Errorf("clear toggle %s: %w", key, err)
	}
	return nil
}
