// Package comms models outbound communication jobs and delivers the email
// ones over SMTP. SMS jobs are queued for the external gateway.
package comms

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery medium of a job.
type Channel string

// Supported channels.
const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Priority orders pending jobs.
type Priority string

// Job priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Status tracks a job through delivery.
type Status string

// Job states.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// TemplateInvoiceOverdue renders the overdue invoice reminder email.
const TemplateInvoiceOverdue = "invoice_overdue"

var jobNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("vendai:communication_jobs"))

// JobID derives the row id from the unique key so retried enqueues collide.
func JobID(uniqueKey string) uuid.UUID {
	return uuid.NewSHA1(jobNamespace, []byte(uniqueKey))
}

// PriorityFor returns the default priority of a channel.
func PriorityFor(ch Channel) Priority {
	if ch == ChannelSMS {
		return PriorityUrgent
	}
	return PriorityHigh
}

// Job is a row of communication_jobs.
type Job struct {
	ID           uuid.UUID
	UniqueKey    string
	Channel      Channel
	Status       Status
	Priority     Priority
	Recipient    string
	Template     string
	InvoiceID    string
	RetailerID   string
	Message      string
	Payload      map[string]any
	Attempts     int
	LastError    string
	ScheduledFor time.Time
	CreatedAt    time.Time
}

// NewJob builds a pending job due immediately.
func NewJob(ch Channel, uniqueKey, recipient string, now time.Time) Job {
	return Job{
		ID:           JobID(uniqueKey),
		UniqueKey:    uniqueKey,
		Channel:      ch,
		Status:       StatusPending,
		Priority:     PriorityFor(ch),
		Recipient:    recipient,
		Payload:      map[string]any{},
		ScheduledFor: now,
		CreatedAt:    now,
	}
}

// DeliverySummary reports one delivery pass.
type DeliverySummary struct {
	Claimed  int           `json:"claimed"`
	Sent     int           `json:"sent"`
	Retried  int           `json:"retried"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}
