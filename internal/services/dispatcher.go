package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"coreops/internal/metrics"
	"coreops/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
)

// DispatcherConfig sizes the async intake.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
}

type dispatchJob struct {
	trigger     string
	workspaceID uint
	payload     Payload
}

// Dispatcher turns business events into rule executions. Dispatch never
// returns an error; every failure ends up in the audit trail or the log.
type Dispatcher struct {
	registry *RuleRegistry
	executor *ActionExecutor
	audit    AuditStore
	inbox    InboxStore
	logger   *logrus.Logger
	tracer   trace.Tracer

	queue    chan dispatchJob
	workers  int
	inflight singleflight.Group
	now      func() time.Time
}

func NewDispatcher(registry *RuleRegistry, executor *ActionExecutor, audit AuditStore, inbox InboxStore, cfg DispatcherConfig, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Dispatcher{
		registry: registry,
		executor: executor,
		audit:    audit,
		inbox:    inbox,
		logger:   logger,
		tracer:   otel.Tracer("coreops/automation"),
		queue:    make(chan dispatchJob, cfg.QueueSize),
		workers:  cfg.Workers,
		now:      time.Now,
	}
}

// Dispatch runs every enabled rule bound to trigger, in registry order.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger string, workspaceID uint, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			d.recordDispatchFailure(ctx, trigger, workspaceID, fmt.Errorf("panic resolving rules: %v", r))
		}
	}()

	rules := d.registry.RulesForTrigger(trigger)
	if len(rules) == 0 {
		d.logger.WithField("trigger", trigger).Debug("no automation rules for trigger")
		return
	}
	if payload == nil {
		payload = Payload{}
	}

	for _, rule := range rules {
		if !d.registry.IsEnabled(ctx, workspaceID, rule.Key) {
			d.logger.WithFields(logrus.Fields{"workspace_id": workspaceID, "rule": rule.Key}).Debug("rule disabled for workspace")
			continue
		}
		d.dispatchRule(ctx, trigger, workspaceID, rule, payload)
	}
}

// dispatchRule collapses concurrent runs of the same (workspace, key). A
// caller that waited on another run is a duplicate only when that run
// succeeded; otherwise it tries again and re-checks the audit trail.
func (d *Dispatcher) dispatchRule(ctx context.Context, trigger string, workspaceID uint, rule Rule, payload Payload) {
	key := payload.IdempotencyKey(rule.Key)
	if key == "" {
		d.runRule(ctx, trigger, workspaceID, rule, payload, key)
		return
	}

	flight := fmt.Sprintf("%d|%s", workspaceID, key)
	for {
		ran := false
		v, _, _ := d.inflight.Do(flight, func() (interface{}, error) {
			ran = true
			return d.runRule(ctx, trigger, workspaceID, rule, payload, key), nil
		})
		if ran {
			return
		}
		if status, _ := v.(string); status == models.AuditStatusSuccess || status == statusDuplicate {
			metrics.IncDuplicateSuppressed()
			d.logger.WithFields(logrus.Fields{"workspace_id": workspaceID, "rule": rule.Key, "key": key}).
				Info("duplicate automation absorbed while in flight")
			return
		}
	}
}

// statusDuplicate is the runRule outcome when a success record already exists.
const statusDuplicate = "duplicate"

// runRule executes one rule and returns its outcome: an audit status or
// statusDuplicate.
func (d *Dispatcher) runRule(ctx context.Context, trigger string, workspaceID uint, rule Rule, payload Payload, key string) (status string) {
	ctx, span := d.tracer.Start(ctx, "automation.rule", trace.WithAttributes(
		attribute.String("automation.rule", rule.Key),
		attribute.String("automation.trigger", trigger),
		attribute.Int64("workspace.id", int64(workspaceID)),
	))
	defer span.End()

	log := d.logger.WithFields(logrus.Fields{"workspace_id": workspaceID, "rule": rule.Key, "trigger": trigger})
	source := "automation." + rule.Key

	var rec *models.AuditRecord
	defer func() {
		if r := recover(); r != nil {
			status = models.AuditStatusError
			err := fmt.Errorf("panic in rule %s: %v", rule.Key, r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if rec != nil && rec.Status == models.AuditStatusPending {
				rec.EventType = models.EventAutomationError
				rec.Status = models.AuditStatusError
				rec.Result = err.Error()
				if ferr := d.audit.Finish(ctx, rec); ferr != nil {
					log.Errorf("finish audit record after panic: %v", ferr)
				}
				metrics.ObserveDispatch(models.AuditStatusError, 0)
				return
			}
			d.recordDispatchFailure(ctx, trigger, workspaceID, err)
		}
	}()

	if key != "" {
		dup, err := d.audit.HasSuccess(ctx, workspaceID, key)
		if err != nil {
			log.Errorf("idempotency lookup failed: %v", err)
			d.recordRuleError(ctx, trigger, workspaceID, source, key, fmt.Errorf("idempotency lookup: %w", err))
			return models.AuditStatusError
		}
		if dup {
			metrics.IncDuplicateSuppressed()
			span.SetAttributes(attribute.Bool("automation.duplicate", true))
			log.WithField("key", key).Info("skipping duplicate automation")
			return statusDuplicate
		}
	}

	if contactID, ok := payload.Uint("contact_id"); ok {
		override, err := d.inbox.HasManualOverride(ctx, workspaceID, contactID)
		if err != nil {
			log.Errorf("manual override lookup failed: %v", err)
			d.recordRuleError(ctx, trigger, workspaceID, source, key, fmt.Errorf("manual override lookup: %w", err))
			return models.AuditStatusError
		}
		if override {
			log.WithField("contact_id", contactID).Info("skipping automation, manual override active")
			skipped := &models.AuditRecord{
				WorkspaceID:    workspaceID,
				EventType:      models.EventAutomationSkipped,
				Trigger:        trigger,
				Source:         source,
				Status:         models.AuditStatusSkipped,
				IdempotencyKey: key,
				Payload:        d.snapshot(ctx, workspaceID, payload, key),
				Result:         "Manual override active",
			}
			if err := d.audit.Record(ctx, skipped); err != nil {
				log.Errorf("write skipped audit record: %v", err)
			}
			metrics.ObserveDispatch(models.AuditStatusSkipped, 0)
			return models.AuditStatusSkipped
		}
	}

	rec = &models.AuditRecord{
		WorkspaceID:    workspaceID,
		EventType:      models.EventAutomationStarted,
		Trigger:        trigger,
		Source:         source,
		IdempotencyKey: key,
		Payload:        d.snapshot(ctx, workspaceID, payload, key),
		ActionCount:    len(rule.Actions),
	}
	if err := d.audit.Begin(ctx, rec); err != nil {
		log.Warnf("write pending audit record: %v", err)
		rec.ID = 0
		rec.Status = models.AuditStatusPending
	}

	start := d.now()
	var errs []string
	failed := 0
	for _, action := range rule.Actions {
		res := d.executor.Execute(ctx, action, payload, workspaceID)
		switch {
		case res.Err != nil:
			failed++
			errs = append(errs, res.Err.Error())
			metrics.IncActionFailure(string(res.Type))
			log.WithField("action", res.Type).Errorf("action failed: %v", res.Err)
		case res.Skipped:
			log.WithField("action", res.Type).Debug(res.Message)
		}
	}
	elapsed := d.now().Sub(start)
	ms := elapsed.Milliseconds()

	rec.ExecutionMs = &ms
	rec.FailedActionCount = failed
	if failed == 0 {
		rec.EventType = models.EventAutomationExecuted
		rec.Status = models.AuditStatusSuccess
		rec.Result = "All actions executed"
	} else {
		rec.EventType = models.EventAutomationFailed
		rec.Status = models.AuditStatusError
		rec.Result = "Errors: " + strings.Join(errs, "; ")
		span.SetStatus(codes.Error, rec.Result)
	}
	if err := d.audit.Finish(ctx, rec); err != nil {
		log.Errorf("write audit record: %v", err)
	}
	metrics.ObserveDispatch(rec.Status, elapsed.Seconds())
	log.WithFields(logrus.Fields{"status": rec.Status, "failed_actions": failed, "execution_ms": ms}).Info("automation executed")
	return rec.Status
}

// snapshot stores the payload when execution_logging is on. The key is kept
// in the payload too so exported rows stay self-describing.
func (d *Dispatcher) snapshot(ctx context.Context, workspaceID uint, payload Payload, key string) datatypes.JSON {
	if !d.registry.FeatureEnabled(ctx, workspaceID, FeatureExecutionLogging) {
		return nil
	}
	body := payload.Clone()
	if key != "" {
		body["unique_key"] = key
	}
	raw, err := json.Marshal(body)
	if err != nil {
		d.logger.Warnf("marshal payload snapshot: %v", err)
		return nil
	}
	return datatypes.JSON(raw)
}

func (d *Dispatcher) recordRuleError(ctx context.Context, trigger string, workspaceID uint, source, key string, cause error) {
	rec := &models.AuditRecord{
		WorkspaceID:    workspaceID,
		EventType:      models.EventAutomationError,
		Trigger:        trigger,
		Source:         source,
		Status:         models.AuditStatusError,
		IdempotencyKey: key,
		Result:         cause.Error(),
	}
	if err := d.audit.Record(ctx, rec); err != nil {
		d.logger.Errorf("write error audit record: %v", err)
	}
	metrics.ObserveDispatch(models.AuditStatusError, 0)
}

func (d *Dispatcher) recordDispatchFailure(ctx context.Context, trigger string, workspaceID uint, cause error) {
	d.logger.WithFields(logrus.Fields{"workspace_id": workspaceID, "trigger": trigger}).Errorf("automation dispatch failed: %v", cause)
	d.recordRuleError(ctx, trigger, workspaceID, "automation.dispatcher", "", cause)
}

// Enqueue hands an event to the worker pool. The payload is copied so the
// caller may reuse its map.
func (d *Dispatcher) Enqueue(trigger string, workspaceID uint, payload Payload) error {
	job := dispatchJob{trigger: trigger, workspaceID: workspaceID, payload: payload.Clone()}
	select {
	case d.queue <- job:
		metrics.SetQueueDepth(len(d.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled. Each job gets a
// fresh background context, never the one of the request that queued it.
// Jobs still queued at shutdown are drained before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job := <-d.queue:
					metrics.SetQueueDepth(len(d.queue))
					d.Dispatch(context.Background(), job.trigger, job.workspaceID, job.payload)
				}
			}
		})
	}
	err := g.Wait()
	d.drain()
	return err
}

func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.queue:
			d.Dispatch(context.Background(), job.trigger, job.workspaceID, job.payload)
		default:
			metrics.SetQueueDepth(0)
			return
		}
	}
}

// QueueDepth is the number of events waiting for a worker.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}
