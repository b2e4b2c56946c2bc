package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendai/vendai-jobs/internal/credit"
	"github.com/vendai/vendai-jobs/jobs"
)

type stubQueue struct {
	batches []string
	recalcs []string
}

func (s *stubQueue) EnqueueBatch(_ context.Context, taskType, triggeredBy string) (*asynq.TaskInfo, error) {
	s.batches = append(s.batches, taskType+"/"+triggeredBy)
	return &asynq.TaskInfo{ID: "abc", Queue: jobs.QueueDefault, Type: taskType}, nil
}

func (s *stubQueue) EnqueueRecalculate(_ context.Context, retailerID string, reason credit.Reason, _, _ string) error {
	s.recalcs = append(s.recalcs, retailerID+"/"+string(reason))
	return nil
}

type stubInspector struct {
	scheduled []*asynq.TaskInfo
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if queue == jobs.QueueEvents {
		return nil, asynq.ErrQueueNotFound
	}
	return &asynq.QueueInfo{Queue: queue, Pending: 2, Scheduled: 1, Retry: 4}, nil
}

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, nil
}

func outputs() (Output, *bytes.Buffer, *bytes.Buffer) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	return Output{Stdout: stdout, Stderr: stderr}, stdout, stderr
}

func TestTriggerCommand(t *testing.T) {
	queue := &stubQueue{}
	c := NewJobsCLI(queue, stubInspector{})

	out, stdout, _ := outputs()
	require.Equal(t, 0, c.TriggerCommand(context.Background(), TriggerOptions{Output: out, Job: jobs.TaskReconciliationRun}))
	assert.Contains(t, stdout.String(), "enqueued reconciliation:run id=abc")
	assert.Equal(t, []string{"reconciliation:run/manual"}, queue.batches)

	out, _, stderr := outputs()
	assert.Equal(t, 1, c.TriggerCommand(context.Background(), TriggerOptions{Output: out, Job: "payroll:run"}))
	assert.Contains(t, stderr.String(), "unsupported job")
}

func TestRecalcCommandJSON(t *testing.T) {
	queue := &stubQueue{}
	c := NewJobsCLI(queue, nil)

	out, stdout, _ := outputs()
	out.JSONOutput = true
	require.Equal(t, 0, c.RecalcCommand(context.Background(), RecalcOptions{Output: out, RetailerID: "ret-7"}))
	var body map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &body))
	assert.Equal(t, "manual", body["reason"])
	assert.Equal(t, []string{"ret-7/manual"}, queue.recalcs)

	out, _, _ = outputs()
	assert.Equal(t, 1, c.RecalcCommand(context.Background(), RecalcOptions{Output: out}))
}

func TestQueueCommand(t *testing.T) {
	c := NewJobsCLI(nil, stubInspector{})
	stats, err := c.InspectQueues(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 2, Scheduled: 1, Retry: 4}, stats[0])
	assert.Equal(t, QueueStats{Queue: jobs.QueueEvents}, stats[1])

	out, stdout, _ := outputs()
	require.Equal(t, 0, c.QueueCommand(context.Background(), out))
	assert.Contains(t, stdout.String(), "PENDING")
	assert.Contains(t, stdout.String(), jobs.QueueEvents)
}

func TestScheduledCommand(t *testing.T) {
	next := time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)
	c := NewJobsCLI(nil, stubInspector{scheduled: []*asynq.TaskInfo{{ID: "t1", Type: jobs.TaskCommsDeliver, NextProcessAt: next}}})

	out, stdout, _ := outputs()
	require.Equal(t, 0, c.ScheduledCommand(context.Background(), ScheduledOptions{Output: out}))
	assert.Equal(t, "t1\tcomms:deliver\t2025-06-02 06:00:00\n", stdout.String())
}

func TestMigrateCommand(t *testing.T) {
	var applied string
	version := func(string) (uint, bool, error) { return 2, false, nil }
	out, stdout, _ := outputs()
	code := MigrateCommand(MigrateOptions{Output: out, DSN: "postgres://x", Version: version, Migrate: func(dsn string) error {
		applied = dsn
		return nil
	}})
	require.Equal(t, 0, code)
	assert.Equal(t, "postgres://x", applied)
	assert.Equal(t, "migrations applied (version 2)\n", stdout.String())

	out, stdout, _ = outputs()
	out.JSONOutput = true
	code = MigrateCommand(MigrateOptions{Output: out, DSN: "postgres://x", Version: version, Migrate: func(string) error { return nil }})
	require.Equal(t, 0, code)
	assert.JSONEq(t, `{"version": 2, "dirty": false}`, stdout.String())

	out, _, stderr := outputs()
	code = MigrateCommand(MigrateOptions{Output: out, DSN: "postgres://x", Version: version, Migrate: func(string) error { return errors.New("dirty database") }})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "dirty database")

	out, _, stderr = outputs()
	code = MigrateCommand(MigrateOptions{Output: out, DSN: "postgres://x", Migrate: func(string) error { return nil },
		Version: func(string) (uint, bool, error) { return 2, true, nil }})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "schema version 2 is dirty")
}
