// Package events turns store change notifications into credit recalculation
// requests.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/vendai/vendai-jobs/internal/credit"
	"github.com/vendai/vendai-jobs/internal/shared"
)

// Channel is the PostgreSQL notification channel written by the store triggers.
const Channel = "vendai_events"

// Kind identifies the change that produced an event.
type Kind string

// Event kinds.
const (
	KindPaymentCreated Kind = "payment_created"
	KindDisputeCreated Kind = "dispute_created"
	KindDisputeUpdated Kind = "dispute_updated"
)

const statusResolved = "resolved"

// Event is the decoded notification payload.
type Event struct {
	Kind         Kind   `json:"kind"`
	ID           string `json:"id"`
	EventID      string `json:"eventId"`
	RetailerID   string `json:"retailerId"`
	StatusBefore string `json:"statusBefore"`
	StatusAfter  string `json:"statusAfter"`
}

// Trigger is a recalculation request derived from an event.
type Trigger struct {
	RetailerID string
	Reason     credit.Reason
	TriggerID  string
	EventID    string
}

// Decode parses a notification payload.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("events: decode payload: %w", err)
	}
	return ev, nil
}

// Route maps an event to a recalculation. It returns false for events that
// need no recalculation, and shared.ErrMissingRetailer when a relevant event
// carries no retailer.
func Route(ev Event) (Trigger, bool, error) {
	var reason credit.Reason
	switch ev.Kind {
	case KindPaymentCreated:
		reason = credit.ReasonPaymentReceived
	case KindDisputeCreated:
		reason = credit.ReasonDisputeCreated
	case KindDisputeUpdated:
		if ev.StatusBefore == ev.StatusAfter || ev.StatusAfter != statusResolved {
			return Trigger{}, false, nil
		}
		reason = credit.ReasonDisputeResolved
	default:
		return Trigger{}, false, nil
	}
	if ev.RetailerID == "" {
		return Trigger{}, false, shared.ErrMissingRetailer
	}
	return Trigger{RetailerID: ev.RetailerID, Reason: reason, TriggerID: ev.ID, EventID: ev.EventID}, true, nil
}
