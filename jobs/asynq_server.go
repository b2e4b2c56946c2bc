package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/vendai/vendai-jobs/internal/credit"
	"github.com/vendai/vendai-jobs/internal/credit/scoring"
	"github.com/vendai/vendai-jobs/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts       asynq.RedisClientOpt
	Logger          *slog.Logger
	Concurrency     int
	Location        *time.Location
	ShutdownTimeout time.Duration
	Handlers        []TaskHandler
	Cron            []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueEvents:  6,
			QueueDefault: 3,
		},
		ShutdownTimeout: cfg.ShutdownTimeout,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("task failed", slog.String("task", task.Type()), slog.Any("error", err))
		}),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: cfg.Location})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
			logger.Info("registered cron task", slog.String("task", entry.Task.Type()), slog.String("spec", entry.Spec))
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueBatch enqueues a batch job by task type.
func (c *Client) EnqueueBatch(ctx context.Context, taskType, triggeredBy string) (*asynq.TaskInfo, error) {
	task, err := NewBatchTask(taskType, triggeredBy)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueRecalculate enqueues a single retailer recalculation. A task already
// queued for the same trigger and event is not enqueued twice.
func (c *Client) EnqueueRecalculate(ctx context.Context, retailerID string, reason credit.Reason, triggerID, eventID string) error {
	task, err := NewRecalculateTask(RecalculatePayload{RetailerID: retailerID, Reason: reason, TriggerID: triggerID, EventID: eventID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Enqueuer is the queue surface used by the ops handler.
type Enqueuer interface {
	EnqueueBatch(ctx context.Context, taskType, triggeredBy string) (*asynq.TaskInfo, error)
	EnqueueRecalculate(ctx context.Context, retailerID string, reason credit.Reason, triggerID, eventID string) error
}

// CreditReader exposes read-only credit views.
type CreditReader interface {
	Forecast(ctx context.Context, retailerID string) ([]scoring.ForecastPoint, error)
	Portfolio(ctx context.Context) (scoring.PortfolioSummary, error)
}

// QueueInspector reports queue state.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for job observability and manual triggers.
type Handler struct {
	inspector QueueInspector
	enqueuer  Enqueuer
	credit    CreditReader
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, enqueuer Enqueuer, reader CreditReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, enqueuer: enqueuer, credit: reader, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/trigger/{task}", h.trigger)
	r.Get("/credit/portfolio", h.portfolio)
	r.Post("/credit/{retailerID}/recalculate", h.recalculate)
	r.Get("/credit/{retailerID}/forecast", h.forecast)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
	Retry   int    `json:"retry"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	queues := make([]queueHealth, 0, 2)
	for _, name := range []string{QueueDefault, QueueEvents} {
		stat := queueHealth{Queue: name}
		if h.inspector != nil {
			info, err := h.inspector.GetQueueInfo(name)
			switch {
			case errors.Is(err, asynq.ErrQueueNotFound):
			case err != nil:
				h.logger.Warn("jobs health", slog.String("queue", name), slog.Any("error", err))
				httpx.RespondError(w, httpx.ErrUnavailable)
				return
			case info != nil:
				stat.Pending = info.Pending
				stat.Active = info.Active
				stat.Retry = info.Retry
			}
		}
		queues = append(queues, stat)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok", "queues": queues})
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	taskType := chi.URLParam(r, "task")
	if !IsBatchTask(taskType) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown job "+taskType)
		return
	}
	if h.enqueuer == nil {
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	info, err := h.enqueuer.EnqueueBatch(r.Context(), taskType, TriggerManual)
	if err != nil {
		h.logger.Error("trigger job", slog.String("task", taskType), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("job triggered", slog.String("task", taskType), slog.String("task_id", info.ID))
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task": taskType, "id": info.ID, "queue": info.Queue})
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	retailerID := chi.URLParam(r, "retailerID")
	if h.enqueuer == nil {
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	if err := h.enqueuer.EnqueueRecalculate(r.Context(), retailerID, credit.ReasonManual, "", ""); err != nil {
		h.logger.Error("enqueue recalculation", slog.String("retailer_id", retailerID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"retailerId": retailerID, "reason": string(credit.ReasonManual)})
}

func (h *Handler) forecast(w http.ResponseWriter, r *http.Request) {
	retailerID := chi.URLParam(r, "retailerID")
	if h.credit == nil {
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	points, err := h.credit.Forecast(r.Context(), retailerID)
	if errors.Is(err, credit.ErrProfileNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("credit forecast", slog.String("retailer_id", retailerID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"retailerId": retailerID, "forecast": points})
}

func (h *Handler) portfolio(w http.ResponseWriter, r *http.Request) {
	if h.credit == nil {
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	summary, err := h.credit.Portfolio(r.Context())
	if err != nil {
		h.logger.Error("credit portfolio", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
