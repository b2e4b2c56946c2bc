package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/vendai/vendai-jobs/internal/app"
	"github.com/vendai/vendai-jobs/internal/comms"
	"github.com/vendai/vendai-jobs/internal/credit"
	"github.com/vendai/vendai-jobs/internal/credit/scoring"
	"github.com/vendai/vendai-jobs/internal/events"
	jobmetrics "github.com/vendai/vendai-jobs/internal/jobs"
	"github.com/vendai/vendai-jobs/internal/observability"
	"github.com/vendai/vendai-jobs/internal/platform/cache"
	"github.com/vendai/vendai-jobs/internal/platform/db"
	"github.com/vendai/vendai-jobs/internal/reconciliation"
	"github.com/vendai/vendai-jobs/internal/reminders"
	"github.com/vendai/vendai-jobs/internal/replenishment"
	"github.com/vendai/vendai-jobs/internal/shared"
	"github.com/vendai/vendai-jobs/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()
	checkSchema(logger,
		func() (uint, bool, error) { return db.Version(cfg.PGDSN) },
		db.LatestVersion,
	)

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	obs := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(obs.Registerer())
	locker := cache.NewLocker(redisClient, cfg.JobLockTTL)
	idempotency := shared.NewIdempotencyStore(pool)

	creditCache := credit.NewCache(redisClient, cfg.PortfolioCacheTTL)
	if err := creditCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("credit cache invalidation listener", slog.Any("error", err))
	}
	creditService := credit.NewService(credit.NewRepository(pool), creditCache, credit.ServiceConfig{
		Scoring:            scoringOptions(cfg),
		WatchlistThreshold: cfg.WatchlistScoreThreshold,
		BatchConcurrency:   cfg.BatchConcurrency,
	}, logger)
	reconciliationService := reconciliation.NewService(reconciliation.NewRepository(pool), cfg.BatchConcurrency, logger)
	reminderService := reminders.NewService(reminders.NewRepository(pool), cfg.Location(), cfg.BatchConcurrency, logger)
	replenishmentService := replenishment.NewService(replenishment.NewRepository(pool), cfg.BatchConcurrency, logger)

	renderer, err := comms.NewRenderer()
	if err != nil {
		return err
	}
	mailer, err := comms.NewSMTPMailer(comms.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		return err
	}
	commsStore := comms.NewStore(pool)
	deliverer := comms.NewDeliverer(commsStore, renderer, mailer, comms.DeliveryConfig{
		BatchSize:   cfg.CommsBatchSize,
		MaxAttempts: cfg.CommsMaxAttempts,
	}, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()
	obs.Registerer().MustRegister(observability.NewQueueCollector(inspector, logger, jobs.QueueDefault, jobs.QueueEvents))

	cron, err := cronRegistrations(cfg)
	if err != nil {
		return err
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:       redisOpts,
		Logger:          logger,
		Concurrency:     cfg.WorkerConcurrency,
		Location:        cfg.Location(),
		ShutdownTimeout: cfg.ShutdownTimeout,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCreditRecalculateAll, Handler: jobs.NewCreditRecalculateAllJob(creditService, locker, logger, metrics).Handle},
			{Type: jobs.TaskCreditRecalculate, Handler: jobs.NewCreditRecalculateJob(creditService, idempotency, logger, metrics).Handle},
			{Type: jobs.TaskReconciliationRun, Handler: jobs.NewReconciliationJob(reconciliationService, locker, logger, metrics).Handle},
			{Type: jobs.TaskRemindersOverdue, Handler: jobs.NewOverdueRemindersJob(reminderService, locker, logger, metrics).Handle},
			{Type: jobs.TaskReplenishmentDailyCheck, Handler: jobs.NewReplenishmentJob(replenishmentService, locker, logger, metrics).Handle},
			{Type: jobs.TaskCommsDeliver, Handler: jobs.NewCommsDeliverJob(deliverer, commsStore, locker, logger, metrics).Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupJob(idempotency, locker, logger, metrics).Handle},
		},
		Cron: cron,
	})
	if err != nil {
		return err
	}

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		JobHandler: jobs.NewHandler(inspector, client, creditService, logger),
		Metrics:    obs,
	})
	server := &http.Server{
		Addr:         cfg.OpsAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting ops server", slog.String("addr", cfg.OpsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.EventListenerEnabled {
		listener := events.NewListener(pool, client, logger)
		g.Go(func() error {
			return listener.Run(gctx)
		})
	}
	return g.Wait()
}

// checkSchema logs whether the database carries every embedded migration and
// reports true when it does. Migrations are applied by vendaictl migrate.
func checkSchema(logger *slog.Logger, current func() (uint, bool, error), latest func() (uint, error)) bool {
	version, dirty, err := current()
	if err != nil {
		logger.Warn("read schema version", slog.Any("error", err))
		return false
	}
	want, err := latest()
	if err != nil {
		logger.Warn("read embedded schema version", slog.Any("error", err))
		return false
	}
	if dirty || version < want {
		logger.Warn("database schema is not current; run vendaictl migrate",
			slog.Uint64("version", uint64(version)),
			slog.Uint64("latest", uint64(want)),
			slog.Bool("dirty", dirty),
		)
		return false
	}
	logger.Info("database schema current", slog.Uint64("version", uint64(version)))
	return true
}

func scoringOptions(cfg *app.Config) scoring.Options {
	opts := scoring.DefaultOptions()
	opts.SectorPenalties[scoring.SectorMedium] = cfg.MediumSectorPenalty
	return opts
}

func cronRegistrations(cfg *app.Config) ([]jobs.CronRegistration, error) {
	specs := []struct {
		spec     string
		taskType string
	}{
		{cfg.CreditCron, jobs.TaskCreditRecalculateAll},
		{cfg.ReconciliationCron, jobs.TaskReconciliationRun},
		{cfg.RemindersCron, jobs.TaskRemindersOverdue},
		{cfg.ReplenishmentCron, jobs.TaskReplenishmentDailyCheck},
		{cfg.CommsCron, jobs.TaskCommsDeliver},
		{cfg.IdempotencyCron, jobs.TaskIdempotencyCleanup},
	}
	out := make([]jobs.CronRegistration, 0, len(specs))
	for _, s := range specs {
		if s.spec == "" {
			continue
		}
		task, err := jobs.NewBatchTask(s.taskType, jobs.TriggerCron)
		if err != nil {
			return nil, err
		}
		out = append(out, jobs.CronRegistration{Spec: s.spec, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	return out, nil
}
