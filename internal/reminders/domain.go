// Package reminders notifies retailers about overdue invoices once a day.
package reminders

import (
	"time"

	"github.com/google/uuid"
)

const (
	// NotificationType tags overdue invoice notifications.
	NotificationType = "invoice_overdue"
	// ReminderInterval is the minimum spacing between two reminders for an invoice.
	ReminderInterval = 24 * time.Hour
	// DefaultLocation is the business timezone used to compute "today".
	DefaultLocation = "Africa/Nairobi"

	notificationTitle = "Invoice Overdue"
	day               = 24 * time.Hour
)

// UnpaidStatuses lists invoice payment statuses eligible for reminders.
var UnpaidStatuses = []string{"pending", "partial"}

// Contact is the resolved retailer contact information.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Channels records which channels a reminder went out on.
type Channels struct {
	InApp bool `json:"inApp"`
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

// Notification is a row of notifications.
type Notification struct {
	ID             uuid.UUID
	Type           string
	UserID         string
	OrganizationID string
	Title          string
	Message        string
	Data           map[string]any
	CreatedAt      time.Time
}

// Summary reports one reminder run.
type Summary struct {
	NotificationsSent int           `json:"notificationsSent"`
	EmailsQueued      int           `json:"emailsQueued"`
	SMSQueued         int           `json:"smsQueued"`
	Skipped           int           `json:"skipped"`
	Failures          int           `json:"failures"`
	Duration          time.Duration `json:"duration"`
}

// ReminderKey builds the communication job key for an invoice, channel and day.
func ReminderKey(invoiceID, channel, dayKey string) string {
	return "invoice_overdue:" + invoiceID + ":" + channel + ":" + dayKey
}
