package main

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendai/vendai-jobs/internal/app"
	"github.com/vendai/vendai-jobs/internal/credit/scoring"
	_ "github.com/vendai/vendai-jobs/internal/testing/guard"
	"github.com/vendai/vendai-jobs/jobs"
)

func TestMainSkipsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}

func TestCronRegistrations(t *testing.T) {
	cfg := &app.Config{
		CreditCron:        "0 */6 * * *",
		RemindersCron:     "0 9 * * *",
		ReplenishmentCron: "CRON_TZ=UTC 30 20 * * *",
	}
	regs, err := cronRegistrations(cfg)
	require.NoError(t, err)
	require.Len(t, regs, 3)

	types := make([]string, 0, len(regs))
	for _, r := range regs {
		types = append(types, r.Task.Type())
	}
	assert.Equal(t, []string{jobs.TaskCreditRecalculateAll, jobs.TaskRemindersOverdue, jobs.TaskReplenishmentDailyCheck}, types)
	assert.Equal(t, "CRON_TZ=UTC 30 20 * * *", regs[2].Spec)
}

func TestScoringOptionsOverridesMediumPenalty(t *testing.T) {
	opts := scoringOptions(&app.Config{MediumSectorPenalty: -3})
	assert.Equal(t, -3.0, opts.SectorPenalties[scoring.SectorMedium])
	assert.Equal(t, -8.0, opts.SectorPenalties[scoring.SectorHigh])
}

func TestCheckSchema(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	latest := func() (uint, error) { return 2, nil }
	at := func(v uint, dirty bool) func() (uint, bool, error) {
		return func() (uint, bool, error) { return v, dirty, nil }
	}

	assert.True(t, checkSchema(logger, at(2, false), latest))
	assert.False(t, checkSchema(logger, at(1, false), latest))
	assert.False(t, checkSchema(logger, at(2, true), latest))
	assert.False(t, checkSchema(logger, func() (uint, bool, error) { return 0, false, errors.New("connection refused") }, latest))
}
