package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendai/vendai-jobs/internal/credit"
	"github.com/vendai/vendai-jobs/internal/shared"
)

type recordingEnqueuer struct {
	triggers []Trigger
	err      error
}

func (e *recordingEnqueuer) EnqueueRecalculate(_ context.Context, retailerID string, reason credit.Reason, triggerID, eventID string) error {
	if e.err != nil {
		return e.err
	}
	e.triggers = append(e.triggers, Trigger{RetailerID: retailerID, Reason: reason, TriggerID: triggerID, EventID: eventID})
	return nil
}

func TestRoute(t *testing.T) {
	cases := []struct {
		name   string
		event  Event
		want   Trigger
		routed bool
		err    error
	}{
		{
			name:   "payment created",
			event:  Event{Kind: KindPaymentCreated, ID: "pay-1", RetailerID: "ret-1"},
			want:   Trigger{RetailerID: "ret-1", Reason: credit.ReasonPaymentReceived, TriggerID: "pay-1"},
			routed: true,
		},
		{
			name:   "dispute created",
			event:  Event{Kind: KindDisputeCreated, ID: "dsp-1", RetailerID: "ret-1", StatusAfter: "open"},
			want:   Trigger{RetailerID: "ret-1", Reason: credit.ReasonDisputeCreated, TriggerID: "dsp-1"},
			routed: true,
		},
		{
			name:   "dispute resolved",
			event:  Event{Kind: KindDisputeUpdated, ID: "dsp-1", EventID: "evt-9", RetailerID: "ret-1", StatusBefore: "open", StatusAfter: "resolved"},
			want:   Trigger{RetailerID: "ret-1", Reason: credit.ReasonDisputeResolved, TriggerID: "dsp-1", EventID: "evt-9"},
			routed: true,
		},
		{
			name:  "dispute unchanged",
			event: Event{Kind: KindDisputeUpdated, ID: "dsp-1", RetailerID: "ret-1", StatusBefore: "resolved", StatusAfter: "resolved"},
		},
		{
			name:  "dispute escalated",
			event: Event{Kind: KindDisputeUpdated, ID: "dsp-1", RetailerID: "ret-1", StatusBefore: "open", StatusAfter: "escalated"},
		},
		{
			name:  "payment without retailer",
			event: Event{Kind: KindPaymentCreated, ID: "pay-2"},
			err:   shared.ErrMissingRetailer,
		},
		{
			name:  "unknown kind",
			event: Event{Kind: "invoice_created", ID: "inv-1", RetailerID: "ret-1"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, routed, err := Route(tc.event)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.routed, routed)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDispatch(t *testing.T) {
	enq := &recordingEnqueuer{}
	l := NewListener(nil, enq, nil)
	ctx := context.Background()

	require.NoError(t, l.Dispatch(ctx, []byte(`{"kind":"payment_created","id":"pay-1","retailerId":"ret-1"}`)))
	require.NoError(t, l.Dispatch(ctx, []byte(`{"kind":"dispute_created","id":"dsp-1","retailerId":null}`)))
	require.NoError(t, l.Dispatch(ctx, []byte(`{"kind":"dispute_updated","id":"dsp-2","eventId":"evt-2","retailerId":"ret-2","statusBefore":"open","statusAfter":"resolved"}`)))
	require.Error(t, l.Dispatch(ctx, []byte(`not json`)))

	assert.Equal(t, []Trigger{
		{RetailerID: "ret-1", Reason: credit.ReasonPaymentReceived, TriggerID: "pay-1"},
		{RetailerID: "ret-2", Reason: credit.ReasonDisputeResolved, TriggerID: "dsp-2", EventID: "evt-2"},
	}, enq.triggers)

	enq.err = errors.New("redis down")
	err := l.Dispatch(ctx, []byte(`{"kind":"payment_created","id":"pay-3","retailerId":"ret-1"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestRunRequiresPool(t *testing.T) {
	var l *Listener
	require.Error(t, l.Run(context.Background()))
}
