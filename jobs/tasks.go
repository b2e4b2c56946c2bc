package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/vendai/vendai-jobs/internal/credit"
	"github.com/vendai/vendai-jobs/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueEvents carries event-triggered recalculations.
	QueueEvents = "events"
)

// Task types.
const (
	TaskCreditRecalculateAll    = "credit:recalculate_all"
	TaskCreditRecalculate       = "credit:recalculate"
	TaskReconciliationRun       = "reconciliation:run"
	TaskRemindersOverdue        = "reminders:overdue"
	TaskReplenishmentDailyCheck = "replenishment:daily_check"
	TaskCommsDeliver            = "comms:deliver"
	TaskIdempotencyCleanup      = "maintenance:idempotency_cleanup"
)

// Trigger sources recorded on batch payloads.
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// DefaultIdempotencyRetention bounds how long processed event keys are kept.
const DefaultIdempotencyRetention = 30 * 24 * time.Hour

// BatchTaskTypes lists the jobs that can be triggered by name.
var BatchTaskTypes = []string{
	TaskCreditRecalculateAll,
	TaskReconciliationRun,
	TaskRemindersOverdue,
	TaskReplenishmentDailyCheck,
	TaskCommsDeliver,
	TaskIdempotencyCleanup,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// BatchPayload is carried by every scheduled batch job.
type BatchPayload struct {
	TriggeredBy string `json:"triggeredBy" validate:"omitempty,oneof=cron manual"`
}

// RecalculatePayload requests a single retailer recalculation.
type RecalculatePayload struct {
	RetailerID string        `json:"retailerId" validate:"required"`
	Reason     credit.Reason `json:"reason" validate:"required"`
	TriggerID  string        `json:"triggerId,omitempty"`
	EventID    string        `json:"eventId,omitempty"`
}

// CleanupPayload configures the idempotency key cleanup.
type CleanupPayload struct {
	TriggeredBy    string `json:"triggeredBy" validate:"omitempty,oneof=cron manual"`
	RetentionHours int    `json:"retentionHours" validate:"gte=0"`
}

// IsBatchTask reports whether taskType names a batch job.
func IsBatchTask(taskType string) bool {
	for _, t := range BatchTaskTypes {
		if t == taskType {
			return true
		}
	}
	return false
}

// NewBatchTask constructs the task for a batch job.
func NewBatchTask(taskType, triggeredBy string) (*asynq.Task, error) {
	if !IsBatchTask(taskType) {
		return nil, fmt.Errorf("jobs: unknown batch task %q", taskType)
	}
	var payload any = BatchPayload{TriggeredBy: triggeredBy}
	if taskType == TaskIdempotencyCleanup {
		payload = CleanupPayload{TriggeredBy: triggeredBy, RetentionHours: int(DefaultIdempotencyRetention / time.Hour)}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data, asynq.MaxRetry(3), asynq.Queue(QueueDefault)), nil
}

// NewRecalculateTask constructs a single retailer recalculation task. Tasks
// carrying a trigger id are deduplicated by task id while queued; the event
// id keeps separate changes of one trigger apart.
func NewRecalculateTask(payload RecalculatePayload) (*asynq.Task, error) {
	if err := validatePayload(payload); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.MaxRetry(3), asynq.Queue(QueueEvents)}
	if payload.TriggerID != "" {
		opts = append(opts, asynq.TaskID(payload.eventKey()))
	}
	return asynq.NewTask(TaskCreditRecalculate, data, opts...), nil
}

func (p RecalculatePayload) eventKey() string {
	return shared.EventKey(string(p.Reason), p.TriggerID, p.EventID)
}

func validatePayload(payload any) error {
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("jobs: invalid payload: %w", err)
	}
	if p, ok := payload.(RecalculatePayload); ok && !p.Reason.Valid() {
		return fmt.Errorf("jobs: invalid payload: unknown reason %q", p.Reason)
	}
	return nil
}

// decodePayload unmarshals and validates a task payload. Malformed payloads are
// wrapped with asynq.SkipRetry. An empty payload leaves dest untouched.
func decodePayload(t *asynq.Task, dest any) error {
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), dest); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
	}
	var value any
	switch v := dest.(type) {
	case *BatchPayload:
		value = *v
	case *RecalculatePayload:
		value = *v
	case *CleanupPayload:
		value = *v
	default:
		return nil
	}
	if err := validatePayload(value); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}
