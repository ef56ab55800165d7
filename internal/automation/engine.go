// Package automation matches CRM events against tenant automation
// rules and executes the resulting sends.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erplora/commshub/internal/db"
	"github.com/erplora/commshub/internal/events"
)

// Store defines the persistence operations the automation engine and
// scheduler depend on.
type Store interface {
	ListActiveAutomationsByTrigger(ctx context.Context, tenantID uuid.UUID, trigger string) ([]*db.Automation, error)
	GetAutomation(ctx context.Context, tenantID, id uuid.UUID) (*db.Automation, error)
	RecordAutomationFired(ctx context.Context, id uuid.UUID) error

	CreateExecution(ctx context.Context, e *db.Execution) error
	DuePendingExecutions(ctx context.Context, limit int) ([]*db.Execution, error)
	MarkExecutionSent(ctx context.Context, id, messageID uuid.UUID) error
	MarkExecutionFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	MarkExecutionSkipped(ctx context.Context, id uuid.UUID, reason string) error

	GetTemplate(ctx context.Context, tenantID, id uuid.UUID) (*db.Template, error)
	GetOrCreateSettings(ctx context.Context, tenantID uuid.UUID) (*db.Settings, error)
	CreateMessage(ctx context.Context, msg *db.Message) error
	MarkMessageSent(ctx context.Context, id uuid.UUID) error
}

// Engine turns incoming CRM events into pending executions.
type Engine struct {
	store  Store
	logger *zap.Logger
}

// NewEngine creates a new automation engine.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// ruleConditions are the structured conditions a rule can carry.
type ruleConditions struct {
	InactivityDays int `json:"inactivity_days"`
}

// eventData are the structured fields the engine reads off event data.
type eventData struct {
	InactivityDays int `json:"inactivity_days"`
}

// HandleEvent matches the event against every active rule for its
// trigger and records one pending execution per matching rule. The
// send itself happens later, when the scheduler picks the execution up
// after the rule's delay.
func (e *Engine) HandleEvent(ctx context.Context, event *events.CRMEvent) error {
	// Malformed events stay malformed on redelivery. Treat them as
	// handled so the consumer deletes them instead of retrying forever.
	tenantID, err := uuid.Parse(event.TenantID)
	if err != nil {
		e.logger.Warn("dropping event with invalid tenant_id",
			zap.String("tenant_id", event.TenantID),
			zap.String("trigger", event.Trigger),
			zap.Error(err),
		)
		return nil
	}
	if !db.ValidTrigger(event.Trigger) {
		e.logger.Warn("dropping event with unknown trigger",
			zap.String("tenant_id", event.TenantID),
			zap.String("trigger", event.Trigger),
		)
		return nil
	}

	rules, err := e.store.ListActiveAutomationsByTrigger(ctx, tenantID, event.Trigger)
	if err != nil {
		return fmt.Errorf("failed to list automations: %w", err)
	}
	if len(rules) == 0 {
		return nil
	}

	triggerData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	var customerID *uuid.UUID
	if event.CustomerID != "" {
		if cid, err := uuid.Parse(event.CustomerID); err == nil {
			customerID = &cid
		}
	}

	for _, rule := range rules {
		if !e.conditionsMet(rule, event) {
			e.logger.Debug("rule conditions not met",
				zap.String("automation_id", rule.ID.String()),
				zap.String("trigger", event.Trigger),
			)
			continue
		}

		var scheduledFor *time.Time
		if rule.DelayHours > 0 {
			at := time.Now().Add(time.Duration(rule.DelayHours) * time.Hour)
			scheduledFor = &at
		}

		exec := &db.Execution{
			ID:           uuid.New(),
			TenantID:     tenantID,
			AutomationID: rule.ID,
			CustomerID:   customerID,
			Status:       db.ExecutionPending,
			TriggerData:  triggerData,
			ScheduledFor: scheduledFor,
		}

		if err := e.store.CreateExecution(ctx, exec); err != nil {
			e.logger.Error("failed to create execution",
				zap.Error(err),
				zap.String("automation_id", rule.ID.String()),
			)
			return fmt.Errorf("failed to create execution: %w", err)
		}

		e.logger.Info("execution scheduled",
			zap.String("execution_id", exec.ID.String()),
			zap.String("automation_id", rule.ID.String()),
			zap.String("trigger", event.Trigger),
			zap.Int("delay_hours", rule.DelayHours),
		)
	}

	return nil
}

// conditionsMet evaluates the rule's structured conditions against the
// event. Rules without conditions always match.
func (e *Engine) conditionsMet(rule *db.Automation, event *events.CRMEvent) bool {
	if len(rule.Conditions) == 0 {
		return true
	}

	var conds ruleConditions
	if err := json.Unmarshal(rule.Conditions, &conds); err != nil {
		e.logger.Warn("unparseable rule conditions, treating as match",
			zap.String("automation_id", rule.ID.String()),
			zap.Error(err),
		)
		return true
	}

	if conds.InactivityDays > 0 {
		var data eventData
		if event.Data != nil {
			_ = json.Unmarshal(event.Data, &data)
		}
		if data.InactivityDays < conds.InactivityDays {
			return false
		}
	}

	return true
}
