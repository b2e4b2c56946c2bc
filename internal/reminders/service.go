package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vendai/vendai-jobs/internal/comms"
	"github.com/vendai/vendai-jobs/internal/platform/batch"
	"github.com/vendai/vendai-jobs/internal/records"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	ListUnpaidInvoices(ctx context.Context, statuses []string) ([]records.Invoice, error)
	GetUser(ctx context.Context, id string) (records.User, bool, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service dispatches overdue invoice reminders.
type Service struct {
	repo   RepositoryPort
	loc    *time.Location
	limit  int
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service. loc defines the business day; limit bounds the
// invoices handled in parallel.
func NewService(repo RepositoryPort, loc *time.Location, limit int, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		loc:    loc,
		limit:  limit,
		logger: logger.With(slog.String("component", "reminders")),
		now:    time.Now,
	}
}

type dispatch struct {
	todayStart time.Time
	dayKey     string
	contacts   *ContactCache
}

type sent struct {
	email, sms bool
}

// Run reminds every retailer holding an unpaid invoice due before today.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	start := s.now()
	local := start.In(s.loc)
	todayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	d := dispatch{
		todayStart: todayStart,
		dayKey:     todayStart.Format(time.DateOnly),
		contacts:   NewContactCache(s.repo.GetUser),
	}

	invoices, err := s.repo.ListUnpaidInvoices(ctx, UnpaidStatuses)
	if err != nil {
		return Summary{}, fmt.Errorf("reminders: list invoices: %w", err)
	}
	var overdue []records.Invoice
	for _, inv := range invoices {
		if inv.DueDate.Valid && inv.DueDate.Value.Before(todayStart) {
			overdue = append(overdue, inv)
		}
	}

	var notifications, emails, sms, skipped atomic.Int64
	failures, err := batch.Each(ctx, s.limit, overdue, func(ctx context.Context, inv records.Invoice) error {
		if inv.LastReminderSent.Valid && todayStart.Sub(inv.LastReminderSent.Value) < ReminderInterval {
			skipped.Add(1)
			return nil
		}
		out, err := s.remind(ctx, d, inv)
		if err != nil {
			return err
		}
		notifications.Add(1)
		if out.email {
			emails.Add(1)
		}
		if out.sms {
			sms.Add(1)
		}
		return nil
	}, func(inv records.Invoice, err error) {
		s.logger.Error("failed to send overdue reminder", slog.String("invoice_id", inv.ID), slog.Any("error", err))
	})

	summary := Summary{
		NotificationsSent: int(notifications.Load()),
		EmailsQueued:      int(emails.Load()),
		SMSQueued:         int(sms.Load()),
		Skipped:           int(skipped.Load()),
		Failures:          failures,
		Duration:          s.now().Sub(start),
	}
	if err != nil {
		return summary, err
	}
	s.logger.Info("overdue reminders completed",
		slog.Int("notifications_sent", summary.NotificationsSent),
		slog.Int("emails_queued", summary.EmailsQueued),
		slog.Int("sms_queued", summary.SMSQueued),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failures", summary.Failures),
		slog.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (s *Service) remind(ctx context.Context, d dispatch, inv records.Invoice) (sent, error) {
	now := s.now().UTC()
	days := max(1, int(d.todayStart.Sub(inv.DueDate.Value)/day))
	amount := inv.Amount.Total.Or(0)
	retailerID := inv.RetailerID.Value

	contact, err := d.contacts.Get(ctx, retailerID, inv.RetailerUserID.Value)
	if err != nil {
		return sent{}, fmt.Errorf("resolve contact: %w", err)
	}

	note := Notification{
		ID:             uuid.New(),
		Type:           NotificationType,
		UserID:         inv.RetailerUserID.Or(retailerID),
		OrganizationID: inv.RetailerOrgID.Or(retailerID),
		Title:          notificationTitle,
		Message:        fmt.Sprintf("Invoice #%s is %d days overdue. Amount: KSh %s", inv.Label(), days, comms.FormatAmount(amount)),
		Data: map[string]any{
			"invoiceId":    inv.ID,
			"daysOverdue":  days,
			"amount":       amount,
			"supplierId":   nullable(inv.SupplierID),
			"supplierName": nullable(inv.SupplierName),
		},
		CreatedAt: now,
	}

	var jobs []comms.Job
	if contact.Email != "" {
		job := comms.NewJob(comms.ChannelEmail, ReminderKey(inv.ID, string(comms.ChannelEmail), d.dayKey), contact.Email, now)
		job.Template = comms.TemplateInvoiceOverdue
		job.InvoiceID = inv.ID
		job.RetailerID = retailerID
		job.Payload = map[string]any{
			"invoiceNumber": inv.Label(),
			"amount":        amount,
			"daysOverdue":   days,
			"dueDate":       inv.DueDate.Value.UTC().Format(time.RFC3339Nano),
			"supplierName":  inv.SupplierName.Value,
			"retailerName":  contact.Name,
		}
		jobs = append(jobs, job)
	}
	if contact.Phone != "" {
		job := comms.NewJob(comms.ChannelSMS, ReminderKey(inv.ID, string(comms.ChannelSMS), d.dayKey), contact.Phone, now)
		job.InvoiceID = inv.ID
		job.RetailerID = retailerID
		job.Message = fmt.Sprintf("Invoice %s is %d days overdue. Amount KSh %s. Please arrange payment.",
			inv.Label(), days, comms.FormatAmount(amount))
		jobs = append(jobs, job)
	}

	var out sent
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertNotification(ctx, note); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		for _, job := range jobs {
			inserted, err := tx.EnqueueCommunication(ctx, job)
			if err != nil {
				return fmt.Errorf("enqueue %s job: %w", job.Channel, err)
			}
			if !inserted {
				continue
			}
			switch job.Channel {
			case comms.ChannelEmail:
				out.email = true
			case comms.ChannelSMS:
				out.sms = true
			}
		}
		channels := Channels{InApp: true, Email: contact.Email != "", SMS: contact.Phone != ""}
		if err := tx.MarkReminded(ctx, inv.ID, channels, now); err != nil {
			return fmt.Errorf("mark reminded: %w", err)
		}
		return nil
	})
	if err != nil {
		return sent{}, err
	}
	return out, nil
}

func nullable(t records.Text) any {
	if !t.Valid {
		return nil
	}
	return t.Value
}
