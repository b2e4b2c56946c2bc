package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/hibiken/asynq"

	"github.com/vendai/vendai-jobs/internal/credit"
	"github.com/vendai/vendai-jobs/jobs"
)

// TaskQueue submits jobs.
type TaskQueue interface {
	EnqueueBatch(ctx context.Context, taskType, triggeredBy string) (*asynq.TaskInfo, error)
	EnqueueRecalculate(ctx context.Context, retailerID string, reason credit.Reason, triggerID, eventID string) error
}

// QueueInspector reads queue state.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	queue     TaskQueue
	inspector QueueInspector
}

// NewJobsCLI wires the CLI helpers.
func NewJobsCLI(queue TaskQueue, inspector QueueInspector) *JobsCLI {
	return &JobsCLI{queue: queue, inspector: inspector}
}

// Output carries the shared command output settings.
type Output struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o Output) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}

func (o Output) stderr() io.Writer {
	if o.Stderr != nil {
		return o.Stderr
	}
	return os.Stderr
}

func (o Output) fail(err error) int {
	fmt.Fprintf(o.stderr(), "error: %v\n", err)
	return 1
}

func (o Output) json(v any) int {
	enc := json.NewEncoder(o.stdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return o.fail(err)
	}
	return 0
}

// TriggerOptions configures the trigger command.
type TriggerOptions struct {
	Output
	Job string
}

// TriggerCommand enqueues a batch job by name and returns the exit code.
func (c *JobsCLI) TriggerCommand(ctx context.Context, opts TriggerOptions) int {
	if c == nil || c.queue == nil {
		return opts.fail(errors.New("jobs cli: client not configured"))
	}
	if !jobs.IsBatchTask(opts.Job) {
		return opts.fail(fmt.Errorf("unsupported job %q (known: %v)", opts.Job, jobs.BatchTaskTypes))
	}
	info, err := c.queue.EnqueueBatch(ctx, opts.Job, jobs.TriggerManual)
	if err != nil {
		return opts.fail(err)
	}
	if opts.JSONOutput {
		return opts.json(map[string]string{"job": opts.Job, "id": info.ID, "queue": info.Queue})
	}
	fmt.Fprintf(opts.stdout(), "enqueued %s id=%s queue=%s\n", opts.Job, info.ID, info.Queue)
	return 0
}

// RecalcOptions configures the recalc command.
type RecalcOptions struct {
	Output
	RetailerID string
}

// RecalcCommand enqueues a manual credit recalculation for one retailer.
func (c *JobsCLI) RecalcCommand(ctx context.Context, opts RecalcOptions) int {
	if c == nil || c.queue == nil {
		return opts.fail(errors.New("jobs cli: client not configured"))
	}
	if opts.RetailerID == "" {
		return opts.fail(errors.New("retailer id is required"))
	}
	if err := c.queue.EnqueueRecalculate(ctx, opts.RetailerID, credit.ReasonManual, "", ""); err != nil {
		return opts.fail(err)
	}
	if opts.JSONOutput {
		return opts.json(map[string]string{"retailerId": opts.RetailerID, "reason": string(credit.ReasonManual)})
	}
	fmt.Fprintf(opts.stdout(), "enqueued credit recalculation for %s\n", opts.RetailerID)
	return 0
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueues reports the metrics of every worker queue.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	out := make([]QueueStats, 0, 2)
	for _, name := range []string{jobs.QueueDefault, jobs.QueueEvents} {
		stats := QueueStats{Queue: name}
		info, err := c.inspector.GetQueueInfo(name)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, err
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}

// QueueCommand prints queue metrics.
func (c *JobsCLI) QueueCommand(ctx context.Context, opts Output) int {
	stats, err := c.InspectQueues(ctx)
	if err != nil {
		return opts.fail(err)
	}
	if opts.JSONOutput {
		return opts.json(stats)
	}
	w := tabwriter.NewWriter(opts.stdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	}
	if err := w.Flush(); err != nil {
		return opts.fail(err)
	}
	return 0
}

// ScheduledOptions configures the scheduled command.
type ScheduledOptions struct {
	Output
	Size int
}

// ScheduledCommand lists tasks waiting in the scheduled set of the default queue.
func (c *JobsCLI) ScheduledCommand(ctx context.Context, opts ScheduledOptions) int {
	if c == nil || c.inspector == nil {
		return opts.fail(errors.New("jobs cli: inspector not configured"))
	}
	size := opts.Size
	if size <= 0 {
		size = 10
	}
	tasks, err := c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
		return opts.fail(err)
	}
	if opts.JSONOutput {
		type row struct {
			ID   string `json:"id"`
			Type string `json:"type"`
			Next string `json:"nextProcessAt"`
		}
		rows := make([]row, 0, len(tasks))
		for _, t := range tasks {
			rows = append(rows, row{ID: t.ID, Type: t.Type, Next: t.NextProcessAt.UTC().Format("2006-01-02T15:04:05Z")})
		}
		return opts.json(rows)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(opts.stdout(), "no scheduled tasks")
		return 0
	}
	for _, t := range tasks {
		fmt.Fprintf(opts.stdout(), "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format("2006-01-02 15:04:05"))
	}
	return 0
}
