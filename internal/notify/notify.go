// Package notify defines the notification capability consumed by the reward
// services. Send failures are reported as structured results, never panics
// or errors, so callers can fold them into best-effort side effect handling.
package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Message is a templated notification addressed to one member.
type Message struct {
	TenantID uint64
	MemberID uint64
	Email    string
	Template string
	Params   map[string]string
}

// SendResult reports the outcome of a send attempt.
type SendResult struct {
	Sent  bool
	Error string
}

// Sender delivers templated notifications.
type Sender interface {
	Send(ctx context.Context, msg Message) SendResult
}

// LogSender is the default Sender; it records the notification in the log
// and reports success. Deployments swap in a real mail provider.
type LogSender struct{}

// Send logs the notification.
func (LogSender) Send(_ context.Context, msg Message) SendResult {
	log.WithFields(log.Fields{
		"tenant_id": msg.TenantID,
		"member_id": msg.MemberID,
		"template":  msg.Template,
	}).Info("notification sent")
	return SendResult{Sent: true}
}
