package db

import (
	"testing"
)

func TestCampaignDeliveryRate(t *testing.T) {
	tests := []struct {
		name      string
		sent      int
		delivered int
		want      float64
	}{
		{name: "no sends yet", sent: 0, delivered: 0, want: 0},
		{name: "partial delivery", sent: 25, delivered: 20, want: 80.0},
		{name: "full delivery", sent: 10, delivered: 10, want: 100.0},
		{name: "one decimal rounding", sent: 3, delivered: 1, want: 33.3},
		{name: "rounds up", sent: 3, delivered: 2, want: 66.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Campaign{SentCount: tt.sent, DeliveredCount: tt.delivered}
			if got := c.DeliveryRate(); got != tt.want {
				t.Errorf("DeliveryRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCampaignProgressPercent(t *testing.T) {
	tests := []struct {
		name  string
		sent  int
		total int
		want  float64
	}{
		{name: "no recipients", sent: 0, total: 0, want: 0},
		{name: "half way", sent: 25, total: 50, want: 50.0},
		{name: "done", sent: 50, total: 50, want: 100.0},
		{name: "one decimal rounding", sent: 1, total: 7, want: 14.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Campaign{SentCount: tt.sent, TotalRecipients: tt.total}
			if got := c.ProgressPercent(); got != tt.want {
				t.Errorf("ProgressPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessageChannelIcon(t *testing.T) {
	tests := []struct {
		channel string
		want    string
	}{
		{ChannelWhatsApp, "logo-whatsapp"},
		{ChannelSMS, "chatbubble-outline"},
		{ChannelEmail, "mail-outline"},
		{"carrier-pigeon", "chatbubble-outline"}, // unknown falls back
	}

	for _, tt := range tests {
		m := &Message{Channel: tt.channel}
		if got := m.ChannelIcon(); got != tt.want {
			t.Errorf("ChannelIcon(%q) = %q, want %q", tt.channel, got, tt.want)
		}
	}
}

func TestMessageStatusColor(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{MessageQueued, "color-warning"},
		{MessageSent, "color-primary"},
		{MessageDelivered, "color-success"},
		{MessageRead, "color-success"},
		{MessageFailed, "color-error"},
		{"unknown", ""},
	}

	for _, tt := range tests {
		m := &Message{Status: tt.status}
		if got := m.StatusColor(); got != tt.want {
			t.Errorf("StatusColor(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestCampaignStatusColor(t *testing.T) {
	c := &Campaign{Status: CampaignSending}
	if got := c.StatusColor(); got != "color-primary" {
		t.Errorf("StatusColor() = %q, want color-primary", got)
	}

	c.Status = "bogus"
	if got := c.StatusColor(); got != "" {
		t.Errorf("StatusColor() for unknown status = %q, want empty", got)
	}
}

func TestAutomationTriggerIcon(t *testing.T) {
	a := &Automation{Trigger: TriggerBirthday}
	if got := a.TriggerIcon(); got != "gift-outline" {
		t.Errorf("TriggerIcon() = %q, want gift-outline", got)
	}

	a.Trigger = "something-new"
	if got := a.TriggerIcon(); got != "flash-outline" {
		t.Errorf("TriggerIcon() fallback = %q, want flash-outline", got)
	}
}

func TestSettingsChannelEnabled(t *testing.T) {
	s := &Settings{WhatsAppEnabled: true, SMSEnabled: false, EmailEnabled: true}

	if !s.ChannelEnabled(ChannelWhatsApp) {
		t.Error("expected whatsapp enabled")
	}
	if s.ChannelEnabled(ChannelSMS) {
		t.Error("expected sms disabled")
	}
	if !s.ChannelEnabled(ChannelEmail) {
		t.Error("expected email enabled")
	}
	if s.ChannelEnabled("telegram") {
		t.Error("unknown channel should never be enabled")
	}
}

func TestValidMessageChannel(t *testing.T) {
	for _, ch := range []string{ChannelWhatsApp, ChannelSMS, ChannelEmail} {
		if !ValidMessageChannel(ch) {
			t.Errorf("expected %q to be a valid message channel", ch)
		}
	}
	if ValidMessageChannel(ChannelAll) {
		t.Error("'all' is a template wildcard, not a sendable channel")
	}
	if ValidMessageChannel("telegram") {
		t.Error("telegram is not a supported channel")
	}
}

func TestValidTrigger(t *testing.T) {
	if !ValidTrigger(TriggerWelcome) {
		t.Error("welcome should be a valid trigger")
	}
	if ValidTrigger("moon-phase") {
		t.Error("unknown trigger accepted")
	}
}
