package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/vendai/vendai-jobs/cmd/vendaictl/cli"
	"github.com/vendai/vendai-jobs/internal/app"
	"github.com/vendai/vendai-jobs/jobs"
)

const usage = `usage: vendaictl <command> [-json] [-size n] [args]

commands:
  migrate              apply database migrations
  trigger <job>        enqueue a batch job (%v)
  recalc <retailerID>  enqueue a manual credit recalculation
  queue                show queue statistics
  scheduled            list scheduled tasks
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintf(stderr, usage, jobs.BatchTaskTypes)
		return 2
	}
	command, rest := args[0], args[1:]

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOut := fs.Bool("json", false, "print JSON output")
	size := fs.Int("size", 10, "page size for scheduled")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	out := cli.Output{JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	slog.SetDefault(app.NewLogger(cfg))

	if command == "migrate" {
		return cli.MigrateCommand(cli.MigrateOptions{Output: out, DSN: cfg.PGDSN})
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		fmt.Fprintf(stderr, "connect queue: %v\n", err)
		return 1
	}
	defer func() { _ = client.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()
	jobsCLI := cli.NewJobsCLI(client, inspector)

	switch command {
	case "trigger":
		return jobsCLI.TriggerCommand(ctx, cli.TriggerOptions{Output: out, Job: fs.Arg(0)})
	case "recalc":
		return jobsCLI.RecalcCommand(ctx, cli.RecalcOptions{Output: out, RetailerID: fs.Arg(0)})
	case "queue":
		return jobsCLI.QueueCommand(ctx, out)
	case "scheduled":
		return jobsCLI.ScheduledCommand(ctx, cli.ScheduledOptions{Output: out, Size: *size})
	default:
		fmt.Fprintf(stderr, usage, jobs.BatchTaskTypes)
		return 2
	}
}
