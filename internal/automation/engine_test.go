package automation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erplora/commshub/internal/db"
	"github.com/erplora/commshub/internal/events"
)

// mockStore is a fake persistence layer for automation tests
type mockStore struct {
	automations map[string]*db.Automation
	executions  map[string]*db.Execution
	templates   map[string]*db.Template
	messages    map[string]*db.Message
	settings    *db.Settings

	firedCount int
}

func newMockStore() *mockStore {
	return &mockStore{
		automations: make(map[string]*db.Automation),
		executions:  make(map[string]*db.Execution),
		templates:   make(map[string]*db.Template),
		messages:    make(map[string]*db.Message),
		settings: &db.Settings{
			ID:              uuid.New(),
			WhatsAppEnabled: true,
			SMSEnabled:      true,
			EmailEnabled:    true,
		},
	}
}

func (m *mockStore) ListActiveAutomationsByTrigger(ctx context.Context, tenantID uuid.UUID, trigger string) ([]*db.Automation, error) {
	var result []*db.Automation
	for _, a := range m.automations {
		if a.TenantID == tenantID && a.Trigger == trigger && a.IsActive && !a.IsDeleted {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *mockStore) GetAutomation(ctx context.Context, tenantID, id uuid.UUID) (*db.Automation, error) {
	a, ok := m.automations[id.String()]
	if !ok || a.TenantID != tenantID || a.IsDeleted {
		return nil, db.ErrNotFound
	}
	return a, nil
}

func (m *mockStore) RecordAutomationFired(ctx context.Context, id uuid.UUID) error {
	m.firedCount++
	if a, ok := m.automations[id.String()]; ok {
		a.TotalSent++
		now := time.Now()
		a.LastTriggeredAt = &now
	}
	return nil
}

func (m *mockStore) CreateExecution(ctx context.Context, e *db.Execution) error {
	m.executions[e.ID.String()] = e
	return nil
}

func (m *mockStore) DuePendingExecutions(ctx context.Context, limit int) ([]*db.Execution, error) {
	var result []*db.Execution
	now := time.Now()
	for _, e := range m.executions {
		if e.Status != db.ExecutionPending {
			continue
		}
		if e.ScheduledFor != nil && e.ScheduledFor.After(now) {
			continue
		}
		result = append(result, e)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *mockStore) MarkExecutionSent(ctx context.Context, id, messageID uuid.UUID) error {
	e := m.executions[id.String()]
	e.Status = db.ExecutionSent
	e.MessageID = &messageID
	now := time.Now()
	e.ExecutedAt = &now
	return nil
}

func (m *mockStore) MarkExecutionFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	e := m.executions[id.String()]
	e.Status = db.ExecutionFailed
	e.ErrorMessage = errorMessage
	return nil
}

func (m *mockStore) MarkExecutionSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	e := m.executions[id.String()]
	e.Status = db.ExecutionSkipped
	e.ErrorMessage = reason
	return nil
}

func (m *mockStore) GetTemplate(ctx context.Context, tenantID, id uuid.UUID) (*db.Template, error) {
	t, ok := m.templates[id.String()]
	if !ok || t.TenantID != tenantID || t.IsDeleted {
		return nil, db.ErrNotFound
	}
	return t, nil
}

func (m *mockStore) GetOrCreateSettings(ctx context.Context, tenantID uuid.UUID) (*db.Settings, error) {
	return m.settings, nil
}

func (m *mockStore) CreateMessage(ctx context.Context, msg *db.Message) error {
	m.messages[msg.ID.String()] = msg
	return nil
}

func (m *mockStore) MarkMessageSent(ctx context.Context, id uuid.UUID) error {
	msg := m.messages[id.String()]
	msg.Status = db.MessageSent
	now := time.Now()
	msg.SentAt = &now
	return nil
}

var testTenantID = uuid.MustParse("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")

func newRule(trigger string, delayHours int) *db.Automation {
	return &db.Automation{
		ID:         uuid.New(),
		TenantID:   testTenantID,
		Name:       "Rule for " + trigger,
		Trigger:    trigger,
		Channel:    db.ChannelEmail,
		DelayHours: delayHours,
		IsActive:   true,
		Conditions: json.RawMessage(`{}`),
	}
}

func TestHandleEvent_CreatesPendingExecution(t *testing.T) {
	store := newMockStore()
	rule := newRule(db.TriggerWelcome, 0)
	store.automations[rule.ID.String()] = rule

	engine := NewEngine(store, zap.NewNop())

	event := &events.CRMEvent{
		TenantID:     testTenantID.String(),
		Trigger:      db.TriggerWelcome,
		CustomerID:   uuid.New().String(),
		CustomerName: "Nora",
		Contact:      "nora@example.com",
	}

	if err := engine.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.executions) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(store.executions))
	}
	for _, exec := range store.executions {
		if exec.Status != db.ExecutionPending {
			t.Errorf("expected pending, got %s", exec.Status)
		}
		if exec.AutomationID != rule.ID {
			t.Error("execution not linked to rule")
		}
		if exec.ScheduledFor != nil {
			t.Error("zero-delay rule should have no scheduled_for")
		}
	}
}

func TestHandleEvent_DelayedExecution(t *testing.T) {
	store := newMockStore()
	rule := newRule(db.TriggerPostSale, 24)
	store.automations[rule.ID.String()] = rule

	engine := NewEngine(store, zap.NewNop())

	event := &events.CRMEvent{
		TenantID: testTenantID.String(),
		Trigger:  db.TriggerPostSale,
		Contact:  "+4915112345678",
	}

	if err := engine.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, exec := range store.executions {
		if exec.ScheduledFor == nil {
			t.Fatal("expected scheduled_for on delayed rule")
		}
		until := time.Until(*exec.ScheduledFor)
		if until < 23*time.Hour || until > 25*time.Hour {
			t.Errorf("scheduled_for should be about 24h out, got %v", until)
		}
	}
}

func TestHandleEvent_NoMatchingRules(t *testing.T) {
	store := newMockStore()
	rule := newRule(db.TriggerBirthday, 0)
	store.automations[rule.ID.String()] = rule

	engine := NewEngine(store, zap.NewNop())

	event := &events.CRMEvent{
		TenantID: testTenantID.String(),
		Trigger:  db.TriggerWelcome,
		Contact:  "x@example.com",
	}

	if err := engine.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.executions) != 0 {
		t.Errorf("expected no executions, got %d", len(store.executions))
	}
}

func TestHandleEvent_UnknownTriggerDropped(t *testing.T) {
	store := newMockStore()
	engine := NewEngine(store, zap.NewNop())

	event := &events.CRMEvent{
		TenantID: testTenantID.String(),
		Trigger:  "solar_eclipse",
	}

	// Returning nil lets the consumer delete the event; an error would
	// keep a permanently malformed event redelivering forever.
	if err := engine.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.executions) != 0 {
		t.Errorf("expected no executions, got %d", len(store.executions))
	}
}

func TestHandleEvent_InvalidTenantDropped(t *testing.T) {
	store := newMockStore()
	engine := NewEngine(store, zap.NewNop())

	event := &events.CRMEvent{
		TenantID: "not-a-uuid",
		Trigger:  db.TriggerWelcome,
	}

	if err := engine.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.executions) != 0 {
		t.Errorf("expected no executions, got %d", len(store.executions))
	}
}

func TestHandleEvent_InactivityCondition(t *testing.T) {
	store := newMockStore()
	rule := newRule(db.TriggerInactivity, 0)
	rule.Conditions = json.RawMessage(`{"inactivity_days": 30}`)
	store.automations[rule.ID.String()] = rule

	engine := NewEngine(store, zap.NewNop())

	// Below the threshold: no execution
	event := &events.CRMEvent{
		TenantID: testTenantID.String(),
		Trigger:  db.TriggerInactivity,
		Contact:  "x@example.com",
		Data:     json.RawMessage(`{"inactivity_days": 10}`),
	}
	if err := engine.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.executions) != 0 {
		t.Fatalf("expected no executions below threshold, got %d", len(store.executions))
	}

	// At the threshold: execution created
	event.Data = json.RawMessage(`{"inactivity_days": 30}`)
	if err := engine.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.executions) != 1 {
		t.Fatalf("expected 1 execution at threshold, got %d", len(store.executions))
	}
}

func TestHandleEvent_MultipleRulesFire(t *testing.T) {
	store := newMockStore()
	ruleA := newRule(db.TriggerWelcome, 0)
	ruleB := newRule(db.TriggerWelcome, 2)
	store.automations[ruleA.ID.String()] = ruleA
	store.automations[ruleB.ID.String()] = ruleB

	engine := NewEngine(store, zap.NewNop())

	event := &events.CRMEvent{
		TenantID: testTenantID.String(),
		Trigger:  db.TriggerWelcome,
		Contact:  "x@example.com",
	}

	if err := engine.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.executions) != 2 {
		t.Errorf("expected 2 executions, got %d", len(store.executions))
	}
}
