// SentinelWatch - Wireless Surveillance and Tail Detection
// Copyright 2026 tikidragonslayer
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tikidragonslayer/Chasing-Your-Tail-NG

package alerts

import (
	"context"
	"fmt"
	"strings"

	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/config"
	"github.com/tikidragonslayer/Chasing-Your-Tail-NG/internal/models"
)

// SendFunc is the external delivery sink for a channel. The core builds
// the message; credentials and transport stay outside.
type SendFunc func(ctx context.Context, to, subject, body string) error

type severityFilter map[models.Severity]bool

func newSeverityFilter(sendOn []string) severityFilter {
	f := make(severityFilter, len(sendOn))
	for _, s := range sendOn {
		f[models.Severity(strings.ToLower(s))] = true
	}
	return f
}

func (f severityFilter) accepts(sev models.Severity) bool {
	// An empty send_on list means every severity.
	if len(f) == 0 {
		return true
	}
	return f[sev]
}

// EmailNotifier formats alerts as email and hands them to the sink.
type EmailNotifier struct {
	cfg    config.EmailChannelConfig
	filter severityFilter
	send   SendFunc
}

// NewEmailNotifier builds the email channel. Returns nil when disabled.
func NewEmailNotifier(cfg config.EmailChannelConfig, send SendFunc) *EmailNotifier {
	if !cfg.Enabled || send == nil {
		return nil
	}
	return &EmailNotifier{cfg: cfg, filter: newSeverityFilter(cfg.SendOn), send: send}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Accepts(sev models.Severity) bool { return n.filter.accepts(sev) }

func (n *EmailNotifier) Notify(ctx context.Context, intent models.AlertIntent) error {
	subject := fmt.Sprintf("[SentinelWatch %s] %s", strings.ToUpper(string(intent.Severity)), intent.Title)
	var b strings.Builder
	b.WriteString(intent.Message)
	b.WriteString("\n\n")
	if intent.DeviceID != "" {
		fmt.Fprintf(&b, "Device: %s\n", intent.DeviceID)
	}
	fmt.Fprintf(&b, "Kind: %s\n", intent.Kind)
	fmt.Fprintf(&b, "At: %s\n", intent.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	if err := n.send(ctx, n.cfg.To, subject, b.String()); err != nil {
		return fmt.Errorf("email delivery failed: %w", err)
	}
	return nil
}

// SMSNotifier formats alerts as a single short message.
type SMSNotifier struct {
	cfg    config.SMSChannelConfig
	filter severityFilter
	send   SendFunc
}

// NewSMSNotifier builds the SMS channel. Returns nil when disabled.
func NewSMSNotifier(cfg config.SMSChannelConfig, send SendFunc) *SMSNotifier {
	if !cfg.Enabled || send == nil {
		return nil
	}
	return &SMSNotifier{cfg: cfg, filter: newSeverityFilter(cfg.SendOn), send: send}
}

func (n *SMSNotifier) Name() string { return "sms" }

func (n *SMSNotifier) Accepts(sev models.Severity) bool { return n.filter.accepts(sev) }

// smsBodyLimit keeps the payload inside one GSM segment pair.
const smsBodyLimit = 300

func (n *SMSNotifier) Notify(ctx context.Context, intent models.AlertIntent) error {
	body := fmt.Sprintf("SentinelWatch %s: %s. %s", intent.Severity, intent.Title, intent.Message)
	if len(body) > smsBodyLimit {
		body = body[:smsBodyLimit-3] + "..."
	}
	if err := n.send(ctx, n.cfg.To, "", body); err != nil {
		return fmt.Errorf("sms delivery failed: %w", err)
	}
	return nil
}

// BuildNotifiers assembles the configured channels. Disabled channels are
// skipped; a nil sink disables a channel regardless of config.
func BuildNotifiers(cfg config.AlertsConfig, emailSend, smsSend SendFunc) []Notifier {
	var out []Notifier
	if n := NewEmailNotifier(cfg.Email, emailSend); n != nil {
		out = append(out, n)
	}
	if n := NewSMSNotifier(cfg.SMS, smsSend); n != nil {
		out = append(out, n)
	}
	return out
}
