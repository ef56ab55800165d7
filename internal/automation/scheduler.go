package automation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erplora/commshub/internal/db"
	"github.com/erplora/commshub/internal/events"
	"github.com/erplora/commshub/internal/metrics"
	"github.com/erplora/commshub/internal/template"
)

// Scheduler polls for due pending executions and performs the sends.
type Scheduler struct {
	store  Store
	config Config
	logger *zap.Logger
}

// Config controls the scheduler's polling behavior.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// NewScheduler creates a new execution scheduler.
func NewScheduler(store Store, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 20
	}

	return &Scheduler{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// Start runs the polling loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("automation scheduler stopping")
			return
		case <-ticker.C:
			s.processBatch(ctx)
		}
	}
}

func (s *Scheduler) processBatch(ctx context.Context) {
	executions, err := s.store.DuePendingExecutions(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.Error("failed to get due executions", zap.Error(err))
		return
	}
	if len(executions) == 0 {
		return
	}

	for _, exec := range executions {
		s.processExecution(ctx, exec)
	}
}

func (s *Scheduler) skip(ctx context.Context, exec *db.Execution, reason string) {
	if err := s.store.MarkExecutionSkipped(ctx, exec.ID, reason); err != nil {
		s.logger.Error("failed to mark execution skipped", zap.Error(err), zap.String("id", exec.ID.String()))
		return
	}
	metrics.RecordAutomationExecution(db.ExecutionSkipped)
	s.logger.Info("execution skipped",
		zap.String("id", exec.ID.String()),
		zap.String("reason", reason),
	)
}

func (s *Scheduler) fail(ctx context.Context, exec *db.Execution, err error) {
	if markErr := s.store.MarkExecutionFailed(ctx, exec.ID, err.Error()); markErr != nil {
		s.logger.Error("failed to mark execution failed", zap.Error(markErr), zap.String("id", exec.ID.String()))
		return
	}
	metrics.RecordAutomationExecution(db.ExecutionFailed)
	s.logger.Error("execution failed",
		zap.Error(err),
		zap.String("id", exec.ID.String()),
	)
}

func (s *Scheduler) processExecution(ctx context.Context, exec *db.Execution) {
	rule, err := s.store.GetAutomation(ctx, exec.TenantID, exec.AutomationID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.skip(ctx, exec, "automation no longer exists")
			return
		}
		s.fail(ctx, exec, err)
		return
	}
	if !rule.IsActive {
		s.skip(ctx, exec, "automation is inactive")
		return
	}

	// The "all" wildcard resolves to email, the channel every tenant
	// can receive on without provider credentials.
	channel := rule.Channel
	if channel == db.ChannelAll {
		channel = db.ChannelEmail
	}

	settings, err := s.store.GetOrCreateSettings(ctx, exec.TenantID)
	if err != nil {
		s.fail(ctx, exec, err)
		return
	}
	if !settings.ChannelEnabled(channel) {
		s.skip(ctx, exec, "channel "+channel+" is disabled")
		return
	}

	if rule.TemplateID == nil {
		s.skip(ctx, exec, "automation has no template")
		return
	}
	tmpl, err := s.store.GetTemplate(ctx, exec.TenantID, *rule.TemplateID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.skip(ctx, exec, "template no longer exists")
			return
		}
		s.fail(ctx, exec, err)
		return
	}
	if !tmpl.IsActive {
		s.skip(ctx, exec, "template is inactive")
		return
	}

	var event events.CRMEvent
	if err := json.Unmarshal(exec.TriggerData, &event); err != nil {
		s.fail(ctx, exec, err)
		return
	}

	renderCtx := template.ContextFromJSON(event.Data)
	renderCtx["customer_name"] = event.CustomerName
	renderCtx["contact"] = event.Contact

	msg := &db.Message{
		ID:               uuid.New(),
		TenantID:         exec.TenantID,
		Channel:          channel,
		RecipientName:    event.CustomerName,
		RecipientContact: event.Contact,
		Subject:          template.Render(tmpl.Subject, renderCtx),
		Body:             template.Render(tmpl.Body, renderCtx),
		Status:           db.MessageQueued,
		TemplateID:       rule.TemplateID,
		CustomerID:       exec.CustomerID,
		ExternalID:       uuid.New().String(),
		Metadata:         json.RawMessage(`{}`),
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		s.fail(ctx, exec, err)
		return
	}
	metrics.RecordMessageCreated(channel, "automation")

	// Simulated provider dispatch
	if err := s.store.MarkMessageSent(ctx, msg.ID); err != nil {
		s.logger.Error("failed to mark message sent", zap.Error(err), zap.String("message_id", msg.ID.String()))
	} else {
		metrics.RecordMessageTransition(db.MessageSent)
	}

	if err := s.store.MarkExecutionSent(ctx, exec.ID, msg.ID); err != nil {
		s.logger.Error("failed to mark execution sent", zap.Error(err), zap.String("id", exec.ID.String()))
		return
	}
	metrics.RecordAutomationExecution(db.ExecutionSent)

	if err := s.store.RecordAutomationFired(ctx, rule.ID); err != nil {
		s.logger.Error("failed to record automation firing", zap.Error(err), zap.String("automation_id", rule.ID.String()))
	}

	s.logger.Info("automation fired",
		zap.String("execution_id", exec.ID.String()),
		zap.String("automation_id", rule.ID.String()),
		zap.String("message_id", msg.ID.String()),
		zap.String("channel", channel),
	)
}
