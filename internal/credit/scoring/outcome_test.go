package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseMetrics() Metrics {
	return Metrics{
		TrailingVolume90d:         10000,
		Orders90d:                 3,
		SuccessfulPayments:        3,
		TotalAttempts:             4,
		FailedPayments:            1,
		CurrentOutstanding:        4000,
		ExistingCreditLimit:       150000,
		ConsecutiveOnTimePayments: 2,
	}
}

func TestApplyPaymentOutcome(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		outcome PaymentOutcome
		check   func(t *testing.T, m Metrics)
	}{
		{"paid", 1500, OutcomePaid, func(t *testing.T, m Metrics) {
			assert.Equal(t, 11500.0, m.TrailingVolume90d)
			assert.Equal(t, 4, m.Orders90d)
			assert.Equal(t, 4, m.SuccessfulPayments)
			assert.Equal(t, 3, m.ConsecutiveOnTimePayments)
			assert.Equal(t, 1.0, m.ManualAdjustment)
			assert.Equal(t, 2500.0, m.CurrentOutstanding)
		}},
		{"paid beyond outstanding", 9000, OutcomePaid, func(t *testing.T, m Metrics) {
			assert.Zero(t, m.CurrentOutstanding)
		}},
		{"partial", 1000, OutcomePartial, func(t *testing.T, m Metrics) {
			assert.Equal(t, 11000.0, m.TrailingVolume90d)
			assert.Equal(t, 3, m.Orders90d)
			assert.Equal(t, 0.5, m.ManualAdjustment)
			assert.Equal(t, 3000.0, m.CurrentOutstanding)
		}},
		{"failed", 1000, OutcomeFailed, func(t *testing.T, m Metrics) {
			assert.Equal(t, 2, m.FailedPayments)
			assert.Zero(t, m.ConsecutiveOnTimePayments)
			assert.Equal(t, -5.0, m.ManualAdjustment)
			assert.Equal(t, 4000.0, m.CurrentOutstanding)
		}},
		{"refunded", 20000, OutcomeRefunded, func(t *testing.T, m Metrics) {
			assert.Equal(t, 1, m.DisputeCount)
			assert.Zero(t, m.TrailingVolume90d)
			assert.Equal(t, 2, m.Orders90d)
			assert.Equal(t, -3.0, m.ManualAdjustment)
			assert.Equal(t, 24000.0, m.CurrentOutstanding)
		}},
		{"unknown", 500, PaymentOutcome("chargeback_review"), func(t *testing.T, m Metrics) {
			assert.Zero(t, m.ConsecutiveOnTimePayments)
			assert.Equal(t, 10000.0, m.TrailingVolume90d)
		}},
		{"non finite amount", math.NaN(), OutcomePaid, func(t *testing.T, m Metrics) {
			assert.Equal(t, 10000.0, m.TrailingVolume90d)
			assert.Equal(t, 4000.0, m.CurrentOutstanding)
		}},
		{"negative amount", -50, OutcomeRefunded, func(t *testing.T, m Metrics) {
			assert.Equal(t, 4000.0, m.CurrentOutstanding)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next := ApplyPaymentOutcome(baseMetrics(), tc.amount, tc.outcome)
			assert.Equal(t, 5, next.TotalAttempts)
			tc.check(t, next)
		})
	}
}

func TestApplyPaymentOutcomeNeverNegative(t *testing.T) {
	m := Metrics{}
	outcomes := []PaymentOutcome{OutcomeRefunded, OutcomeFailed, OutcomeRefunded, OutcomeFailed, OutcomeFailed, OutcomeFailed, OutcomeFailed, OutcomeFailed, OutcomeFailed, OutcomeFailed}
	for _, o := range outcomes {
		m = ApplyPaymentOutcome(m, 100, o)
		assert.GreaterOrEqual(t, m.TrailingVolume90d, 0.0)
		assert.GreaterOrEqual(t, m.Orders90d, 0)
		assert.GreaterOrEqual(t, m.CurrentOutstanding, 0.0)
	}
	assert.Equal(t, float64(MinManualAdjustment), m.ManualAdjustment)
	assert.Equal(t, 10, m.TotalAttempts)

	for i := 0; i < 80; i++ {
		m = ApplyPaymentOutcome(m, 10, OutcomePaid)
	}
	assert.Equal(t, float64(MaxManualAdjustment), m.ManualAdjustment)
	assert.Zero(t, m.CurrentOutstanding)
}
