// Package replenishment compares inventory levels with reorder points and
// proposes purchase quantities from the fastest, cheapest supplier.
package replenishment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Priority ranks how urgently stock must be replenished.
type Priority string

// Suggestion priorities.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

const (
	// QtyMultiplier pads the reorder quantity with safety stock.
	QtyMultiplier = 1.5
	// DefaultLeadTimeDays applies when the supplier SKU carries no lead time.
	DefaultLeadTimeDays = 7.0

	// JobTypeDailyCheck tags the scheduled job run.
	JobTypeDailyCheck = "daily_check"
	// TriggerCron marks runs started by the scheduler.
	TriggerCron = "cron"
	// TriggerManual marks runs started by an operator.
	TriggerManual = "manual"

	statusPending     = "pending"
	unknownProduct    = "Unknown Product"
	unknownSupplier   = "Unknown Supplier"
	reasonOutOfStock  = "Out of stock - urgent replenishment required"
	reasonCriticalFmt = "Critical: Only %d%% of reorder point remaining"
	reasonBelowFmt    = "Below reorder point (%d%% remaining)"
)

// Job run states.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Suggestion is a row of replenishment_suggestions.
type Suggestion struct {
	ID                    uuid.UUID
	OrgID                 string
	ProductID             string
	ProductName           string
	CurrentStock          float64
	ReorderPoint          float64
	SuggestedQty          int
	PreferredSupplierID   string
	PreferredSupplierName string
	SupplierLeadTime      float64
	UnitCost              decimal.Decimal
	TotalCost             decimal.Decimal
	Status                string
	Reason                string
	Priority              Priority
	CreatedAt             time.Time
}

// OrgError records an organization that could not be processed.
type OrgError struct {
	OrgID string `json:"orgId"`
	Error string `json:"error"`
}

// JobRun is a row of replenishment_jobs.
type JobRun struct {
	ID               uuid.UUID
	Type             string
	Status           string
	TriggeredBy      string
	ProcessedOrgs    int
	TotalSuggestions int
	Errors           []OrgError
	StartedAt        time.Time
	CompletedAt      time.Time
}

// Summary reports one replenishment run.
type Summary struct {
	RunID            uuid.UUID     `json:"runId"`
	ProcessedOrgs    int           `json:"processedOrgs"`
	TotalSuggestions int           `json:"totalSuggestions"`
	Errors           []OrgError    `json:"errors,omitempty"`
	Duration         time.Duration `json:"duration"`
}
