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

func seedExecution(store *mockStore, rule *db.Automation, event *events.CRMEvent) *db.Execution {
	data, _ := json.Marshal(event)
	exec := &db.Execution{
		ID:           uuid.New(),
		TenantID:     rule.TenantID,
		AutomationID: rule.ID,
		Status:       db.ExecutionPending,
		TriggerData:  data,
	}
	store.executions[exec.ID.String()] = exec
	return exec
}

func seedTemplate(store *mockStore, subject, body string) *db.Template {
	tmpl := &db.Template{
		ID:       uuid.New(),
		TenantID: testTenantID,
		Name:     "Automation template",
		Channel:  db.ChannelAll,
		Category: db.CategoryCustom,
		Subject:  subject,
		Body:     body,
		IsActive: true,
	}
	store.templates[tmpl.ID.String()] = tmpl
	return tmpl
}

func TestScheduler_SendsDueExecution(t *testing.T) {
	store := newMockStore()
	tmpl := seedTemplate(store, "Welcome {{customer_name}}", "Hello {{customer_name}}, glad to have you.")
	rule := newRule(db.TriggerWelcome, 0)
	rule.TemplateID = &tmpl.ID
	store.automations[rule.ID.String()] = rule

	event := &events.CRMEvent{
		TenantID:     testTenantID.String(),
		Trigger:      db.TriggerWelcome,
		CustomerName: "Nora",
		Contact:      "nora@example.com",
	}
	exec := seedExecution(store, rule, event)

	s := NewScheduler(store, Config{}, zap.NewNop())
	s.processBatch(context.Background())

	if exec.Status != db.ExecutionSent {
		t.Fatalf("expected sent, got %s (%s)", exec.Status, exec.ErrorMessage)
	}
	if exec.MessageID == nil {
		t.Fatal("expected message reference on execution")
	}

	msg := store.messages[exec.MessageID.String()]
	if msg == nil {
		t.Fatal("message not created")
	}
	if msg.Status != db.MessageSent {
		t.Errorf("expected message sent, got %s", msg.Status)
	}
	if msg.Body != "Hello Nora, glad to have you." {
		t.Errorf("unexpected rendered body: %q", msg.Body)
	}
	if msg.Channel != db.ChannelEmail {
		t.Errorf("wildcard channel should resolve to email, got %s", msg.Channel)
	}
	if msg.ExternalID == "" {
		t.Error("expected generated external_id")
	}

	if store.firedCount != 1 {
		t.Errorf("expected 1 firing recorded, got %d", store.firedCount)
	}
	if rule.TotalSent != 1 {
		t.Errorf("expected total_sent 1, got %d", rule.TotalSent)
	}
	if rule.LastTriggeredAt == nil {
		t.Error("expected last_triggered_at to be stamped")
	}
}

func TestScheduler_SkipsFutureExecution(t *testing.T) {
	store := newMockStore()
	tmpl := seedTemplate(store, "", "later")
	rule := newRule(db.TriggerPostSale, 24)
	rule.TemplateID = &tmpl.ID
	store.automations[rule.ID.String()] = rule

	exec := seedExecution(store, rule, &events.CRMEvent{
		TenantID: testTenantID.String(),
		Trigger:  db.TriggerPostSale,
		Contact:  "x@example.com",
	})
	future := time.Now().Add(24 * time.Hour)
	exec.ScheduledFor = &future

	s := NewScheduler(store, Config{}, zap.NewNop())
	s.processBatch(context.Background())

	if exec.Status != db.ExecutionPending {
		t.Errorf("future execution should stay pending, got %s", exec.Status)
	}
	if len(store.messages) != 0 {
		t.Error("no message should be created")
	}
}

func TestScheduler_SkipsInactiveRule(t *testing.T) {
	store := newMockStore()
	tmpl := seedTemplate(store, "", "hi")
	rule := newRule(db.TriggerWelcome, 0)
	rule.TemplateID = &tmpl.ID
	rule.IsActive = false
	store.automations[rule.ID.String()] = rule

	exec := seedExecution(store, rule, &events.CRMEvent{
		TenantID: testTenantID.String(),
		Trigger:  db.TriggerWelcome,
		Contact:  "x@example.com",
	})

	s := NewScheduler(store, Config{}, zap.NewNop())
	s.processBatch(context.Background())

	if exec.Status != db.ExecutionSkipped {
		t.Fatalf("expected skipped, got %s", exec.Status)
	}
	if store.firedCount != 0 {
		t.Error("inactive rule must not record a firing")
	}
}

func TestScheduler_SkipsDisabledChannel(t *testing.T) {
	store := newMockStore()
	store.settings.SMSEnabled = false

	tmpl := seedTemplate(store, "", "hi")
	rule := newRule(db.TriggerWelcome, 0)
	rule.Channel = db.ChannelSMS
	rule.TemplateID = &tmpl.ID
	store.automations[rule.ID.String()] = rule

	exec := seedExecution(store, rule, &events.CRMEvent{
		TenantID: testTenantID.String(),
		Trigger:  db.TriggerWelcome,
		Contact:  "+4915112345678",
	})

	s := NewScheduler(store, Config{}, zap.NewNop())
	s.processBatch(context.Background())

	if exec.Status != db.ExecutionSkipped {
		t.Fatalf("expected skipped, got %s", exec.Status)
	}
	if len(store.messages) != 0 {
		t.Error("no message should be created on a disabled channel")
	}
}

func TestScheduler_SkipsMissingTemplate(t *testing.T) {
	store := newMockStore()
	rule := newRule(db.TriggerWelcome, 0)
	store.automations[rule.ID.String()] = rule

	exec := seedExecution(store, rule, &events.CRMEvent{
		TenantID: testTenantID.String(),
		Trigger:  db.TriggerWelcome,
		Contact:  "x@example.com",
	})

	s := NewScheduler(store, Config{}, zap.NewNop())
	s.processBatch(context.Background())

	if exec.Status != db.ExecutionSkipped {
		t.Fatalf("expected skipped, got %s", exec.Status)
	}
}

func TestScheduler_SkipsInactiveTemplate(t *testing.T) {
	store := newMockStore()
	tmpl := seedTemplate(store, "", "hi")
	tmpl.IsActive = false
	rule := newRule(db.TriggerWelcome, 0)
	rule.TemplateID = &tmpl.ID
	store.automations[rule.ID.String()] = rule

	exec := seedExecution(store, rule, &events.CRMEvent{
		TenantID: testTenantID.String(),
		Trigger:  db.TriggerWelcome,
		Contact:  "x@example.com",
	})

	s := NewScheduler(store, Config{}, zap.NewNop())
	s.processBatch(context.Background())

	if exec.Status != db.ExecutionSkipped {
		t.Fatalf("expected skipped, got %s", exec.Status)
	}
}

func TestScheduler_RendersEventData(t *testing.T) {
	store := newMockStore()
	tmpl := seedTemplate(store, "", "Your {{item}} is ready, {{customer_name}}.")
	rule := newRule(db.TriggerTicketResolved, 0)
	rule.TemplateID = &tmpl.ID
	store.automations[rule.ID.String()] = rule

	exec := seedExecution(store, rule, &events.CRMEvent{
		TenantID:     testTenantID.String(),
		Trigger:      db.TriggerTicketResolved,
		CustomerName: "Sam",
		Contact:      "sam@example.com",
		Data:         json.RawMessage(`{"item": "repair order"}`),
	})

	s := NewScheduler(store, Config{}, zap.NewNop())
	s.processBatch(context.Background())

	if exec.Status != db.ExecutionSent {
		t.Fatalf("expected sent, got %s (%s)", exec.Status, exec.ErrorMessage)
	}
	msg := store.messages[exec.MessageID.String()]
	if msg.Body != "Your repair order is ready, Sam." {
		t.Errorf("unexpected rendered body: %q", msg.Body)
	}
}
