package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"coreops/internal/metrics"
	"coreops/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// terminal execution event types, the only rows counted as executions
var executionEvents = []string{models.EventAutomationExecuted, models.EventAutomationFailed}

// RuleStatus is one row of the rules admin view.
type RuleStatus struct {
	Rule
	ActionTypes    []ActionType `json:"actions"`
	Enabled        bool         `json:"enabled"`
	ExecCount24h   int64        `json:"exec_count_24h"`
	LastTriggered  *time.Time   `json:"last_triggered"`
	SuccessRate24h float64      `json:"success_rate_24h"`
}

type FeatureStatus struct {
	Feature
	Enabled bool `json:"enabled"`
}

type AutomationMetrics struct {
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failures    int64   `json:"failures"`
	SuccessRate float64 `json:"success_rate"`
}

type EngineStatus struct {
	State        string `json:"state"` // running, degraded, error
	Triggers     int    `json:"triggers"`
	Integrations int    `json:"integrations"`

	TotalEvents int64   `json:"total_events"`
	Success     int64   `json:"success"`
	Failures    int64   `json:"failures"`
	SuccessRate float64 `json:"success_rate"`

	AvgLatencyMs int64 `json:"avg_latency_ms"`
	P95LatencyMs int64 `json:"p95_latency_ms"`

	EventsPerMinute float64 `json:"events_per_minute"`
	Events24h       int64   `json:"events_24h"`
	Failures24h     int64   `json:"failures_24h"`
	FailureRate24h  float64 `json:"failure_rate_24h"`

	DuplicatesSuppressed uint64                   `json:"duplicates_suppressed"`
	QueueDepth           int                      `json:"queue_depth"`
	Breakers             []map[string]interface{} `json:"breakers,omitempty"`
}

type FailureEntry struct {
	ID          uint           `json:"id"`
	EventType   string         `json:"event_type"`
	Status      string         `json:"status"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
	Metadata    datatypes.JSON `json:"metadata"`
	ExecutionMs *int64         `json:"execution_ms"`
}

// AutomationStatsService backs the admin read surface.
type AutomationStatsService struct {
	db         *gorm.DB
	registry   *RuleRegistry
	executor   *ActionExecutor
	dispatcher *Dispatcher
	logger     *logrus.Logger
	now        func() time.Time
}

func NewAutomationStatsService(db *gorm.DB, registry *RuleRegistry, executor *ActionExecutor, dispatcher *Dispatcher, logger *logrus.Logger) *AutomationStatsService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationStatsService{
		db:         db,
		registry:   registry,
		executor:   executor,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *AutomationStatsService) executions(ctx context.Context, workspaceID uint) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.AuditRecord{}).
		Where("workspace_id = ? AND event_type IN ?", workspaceID, executionEvents)
}

// Rules lists every rule with its toggle and 24h figures.
func (s *AutomationStatsService) Rules(ctx context.Context, workspaceID uint) ([]RuleStatus, error) {
	type row struct {
		Source       string
		ExecCount    int64
		SuccessCount int64
	}
	var rows []row
	err := s.executions(ctx, workspaceID).
		Select("source, COUNT(id) AS exec_count, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS success_count", models.AuditStatusSuccess).
		Where("created_at >= ?", s.now().Add(-24*time.Hour)).
		Group("source").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("rule stats: %w", err)
	}

	byKey := make(map[string]row, len(rows))
	for _, r := range rows {
		byKey[strings.TrimPrefix(r.Source, "automation.")] = r
	}

	rules := s.registry.Rules()
	out := make([]RuleStatus, 0, len(rules))
	for _, rule := range rules {
		st := RuleStatus{
			Rule:           rule,
			ActionTypes:    rule.ActionTypes(),
			Enabled:        s.registry.IsEnabled(ctx, workspaceID, rule.Key),
			SuccessRate24h: 100,
		}
		if r, ok := byKey[rule.Key]; ok {
			st.ExecCount24h = r.ExecCount
			st.SuccessRate24h = percent(r.SuccessCount, r.ExecCount, 100)
			st.LastTriggered = s.lastTriggered(ctx, workspaceID, "automation."+rule.Key)
		}
		out = append(out, st)
	}
	return out, nil
}

// lastTriggered loads the newest row; MAX(created_at) scans differently per
// driver.
func (s *AutomationStatsService) lastTriggered(ctx context.Context, workspaceID uint, source string) *time.Time {
	var rec models.AuditRecord
	err := s.executions(ctx, workspaceID).
		Where("source = ?", source).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&rec).Error
	if err != nil || rec.ID == 0 {
		return nil
	}
	t := rec.CreatedAt
	return &t
}

func (s *AutomationStatsService) Features(ctx context.Context, workspaceID uint) []FeatureStatus {
	features := s.registry.Features()
	out := make([]FeatureStatus, 0, len(features))
	for _, f := range features {
		out = append(out, FeatureStatus{Feature: f, Enabled: s.registry.FeatureEnabled(ctx, workspaceID, f.Key)})
	}
	return out
}

// Metrics is the all-time success/failure split.
func (s *AutomationStatsService) Metrics(ctx context.Context, workspaceID uint) (*AutomationMetrics, error) {
	var total, success int64
	if err := s.executions(ctx, workspaceID).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}
	if err := s.executions(ctx, workspaceID).Where("status = ?", models.AuditStatusSuccess).Count(&success).Error; err != nil {
		return nil, fmt.Errorf("count successes: %w", err)
	}
	return &AutomationMetrics{
		Total:       total,
		Success:     success,
		Failures:    total - success,
		SuccessRate: percent(success, total, 100),
	}, nil
}

// EngineStatus aggregates health for the dashboard header.
func (s *AutomationStatsService) EngineStatus(ctx context.Context, workspaceID uint) (*EngineStatus, error) {
	m, err := s.Metrics(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	since24h := now.Add(-24 * time.Hour)
	since1h := now.Add(-time.Hour)

	var latencies []int64
	err = s.db.WithContext(ctx).Model(&models.AuditRecord{}).
		Where("workspace_id = ? AND event_type = ? AND execution_ms IS NOT NULL AND created_at >= ?",
			workspaceID, models.EventAutomationExecuted, since24h).
		Order("created_at DESC").
		Limit(500).
		Pluck("execution_ms", &latencies).Error
	if err != nil {
		return nil, fmt.Errorf("latency sample: %w", err)
	}
	avg, p95 := latencyStats(latencies)

	var lastHour, events24h, failures24h int64
	if err := s.executions(ctx, workspaceID).Where("created_at >= ?", since1h).Count(&lastHour).Error; err != nil {
		return nil, fmt.Errorf("count last hour: %w", err)
	}
	if err := s.executions(ctx, workspaceID).Where("created_at >= ?", since24h).Count(&events24h).Error; err != nil {
		return nil, fmt.Errorf("count 24h: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.AuditRecord{}).
		Where("workspace_id = ? AND event_type = ? AND created_at >= ?", workspaceID, models.EventAutomationFailed, since24h).
		Count(&failures24h).Error; err != nil {
		return nil, fmt.Errorf("count failures 24h: %w", err)
	}
	failureRate := percent(failures24h, events24h, 0)

	st := &EngineStatus{
		State:                engineState(failureRate),
		Triggers:             len(s.registry.Rules()),
		Integrations:         2,
		TotalEvents:          m.Total,
		Success:              m.Success,
		Failures:             m.Failures,
		SuccessRate:          m.SuccessRate,
		AvgLatencyMs:         avg,
		P95LatencyMs:         p95,
		EventsPerMinute:      round(float64(lastHour)/60, 2),
		Events24h:            events24h,
		Failures24h:          failures24h,
		FailureRate24h:       failureRate,
		DuplicatesSuppressed: metrics.DuplicatesSuppressed(),
	}
	if s.dispatcher != nil {
		st.QueueDepth = s.dispatcher.QueueDepth()
	}
	if s.executor != nil {
		st.Breakers = s.executor.BreakerStats()
	}
	return st, nil
}

// RecentFailures returns the last 10 error rows.
func (s *AutomationStatsService) RecentFailures(ctx context.Context, workspaceID uint) ([]FailureEntry, error) {
	var recs []models.AuditRecord
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND event_type LIKE ? AND status = ?", workspaceID, "automation%", models.AuditStatusError).
		Order("created_at DESC, id DESC").
		Limit(10).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("recent failures: %w", err)
	}
	out := make([]FailureEntry, 0, len(recs))
	for _, r := range recs {
		desc := r.Result
		if desc == "" {
			desc = "No details"
		}
		out = append(out, FailureEntry{
			ID:          r.ID,
			EventType:   r.EventType,
			Status:      r.Status,
			Description: desc,
			CreatedAt:   r.CreatedAt,
			Metadata:    r.Payload,
			ExecutionMs: r.ExecutionMs,
		})
	}
	return out, nil
}

func engineState(failureRate float64) string {
	switch {
	case failureRate > 25:
		return "error"
	case failureRate > 10:
		return "degraded"
	default:
		return "running"
	}
}

// latencyStats returns the rounded mean and the 95th percentile. Fewer than
// two samples report the mean for both.
func latencyStats(samples []int64) (avg, p95 int64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum int64
	for _, v := range samples {
		sum += v
	}
	avg = int64(math.Round(float64(sum) / float64(len(samples))))
	if len(samples) < 2 {
		return avg, avg
	}
	sorted := append([]int64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return avg, sorted[int(float64(len(sorted))*0.95)]
}

func percent(part, total int64, empty float64) float64 {
	if total == 0 {
		return empty
	}
	return round(float64(part)/float64(total)*100, 1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
