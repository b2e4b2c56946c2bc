package credit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vendai/vendai-jobs/internal/credit/scoring"
	"github.com/vendai/vendai-jobs/internal/platform/batch"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Source
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListActiveRetailers(ctx context.Context) ([]string, error)
	ListLatestAssessments(ctx context.Context) ([]scoring.Assessment, error)
}

// ServiceConfig groups tunables.
type ServiceConfig struct {
	Scoring            scoring.Options
	WatchlistThreshold float64
	BatchConcurrency   int
}

// Service recalculates retailer credit assessments.
type Service struct {
	repo      RepositoryPort
	agg       *Aggregator
	cache     *Cache
	opts      scoring.Options
	threshold float64
	limit     int
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache *Cache, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Scoring.SectorPenalties == nil {
		cfg.Scoring = scoring.DefaultOptions()
	}
	if cfg.WatchlistThreshold == 0 {
		cfg.WatchlistThreshold = DefaultWatchlistScoreThreshold
	}
	return &Service{
		repo:      repo,
		agg:       NewAggregator(repo),
		cache:     cache,
		opts:      cfg.Scoring,
		threshold: cfg.WatchlistThreshold,
		limit:     cfg.BatchConcurrency,
		logger:    logger.With(slog.String("component", "credit")),
		now:       time.Now,
	}
}

// Recalculate aggregates, scores and persists one retailer. It returns a nil
// result without error when the retailer has no credit profile.
func (s *Service) Recalculate(ctx context.Context, retailerID string, reason Reason, triggerID string) (*Result, error) {
	if retailerID == "" {
		return nil, errors.New("credit: retailer id required")
	}
	if !reason.Valid() {
		return nil, fmt.Errorf("credit: unknown reason %q", reason)
	}
	comp, err := s.agg.Build(ctx, retailerID)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		s.logger.Warn("skipped credit recalculation because credit profile is missing", slog.String("retailer_id", retailerID))
		return nil, nil
	}

	now := s.now().UTC()
	assessment := scoring.Assess(comp.Input, s.opts, now)
	entry := EvaluateWatchlist(assessment, comp.Input, comp.Stats, reason, s.threshold)
	record := HistoryRecord{
		ID:         uuid.New(),
		RetailerID: retailerID,
		Reason:     reason,
		TriggerID:  triggerID,
		Assessment: assessment,
		Input:      comp.Input,
		Metrics:    comp.Metrics,
		Stats:      comp.Stats,
		CreatedAt:  now,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.MergeProfile(ctx, retailerID, newProfileMetrics(*comp, now), assessment, now); err != nil {
			return fmt.Errorf("merge profile: %w", err)
		}
		if err := tx.AppendHistory(ctx, record); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		if err := tx.UpsertWatchlist(ctx, entry, now); err != nil {
			return fmt.Errorf("upsert watchlist: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("credit: persist %s: %w", retailerID, err)
	}

	s.logger.Info("credit recalculated",
		slog.String("retailer_id", retailerID),
		slog.String("reason", string(reason)),
		slog.Float64("score", assessment.Score),
		slog.String("tier", assessment.Tier.ID),
		slog.String("watchlist", string(entry.Status)),
	)
	return &Result{Assessment: assessment, Stats: comp.Stats, Watchlist: entry}, nil
}

// RecalculateActive recalculates every active retailer with per-retailer
// isolation and invalidates the portfolio cache afterwards.
func (s *Service) RecalculateActive(ctx context.Context) (BatchSummary, error) {
	start := s.now()
	retailers, err := s.repo.ListActiveRetailers(ctx)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("credit: list active retailers: %w", err)
	}

	var processed, skipped atomic.Int64
	failures, err := batch.Each(ctx, s.limit, retailers, func(ctx context.Context, retailerID string) error {
		result, err := s.Recalculate(ctx, retailerID, ReasonScheduled, "")
		if err != nil {
			return err
		}
		if result == nil {
			skipped.Add(1)
		} else {
			processed.Add(1)
		}
		return nil
	}, func(retailerID string, err error) {
		s.logger.Error("failed to recalculate credit for retailer", slog.String("retailer_id", retailerID), slog.Any("error", err))
	})
	summary := BatchSummary{
		Processed: int(processed.Load()),
		Skipped:   int(skipped.Load()),
		Failures:  failures,
		Duration:  s.now().Sub(start),
	}
	if err != nil {
		return summary, err
	}
	if bumpErr := s.cache.Bump(ctx); bumpErr != nil {
		s.logger.Warn("credit cache bump failed", slog.Any("error", bumpErr))
	}
	s.logger.Info("credit recalculation finished",
		slog.Int("processed", summary.Processed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failures", summary.Failures),
		slog.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// Forecast projects the retailer's limit path from its last assessment,
// assessing afresh when none is stored.
func (s *Service) Forecast(ctx context.Context, retailerID string) ([]scoring.ForecastPoint, error) {
	profile, err := s.repo.GetProfile(ctx, retailerID)
	if err != nil {
		return nil, err
	}
	assessment := profile.LastAssessment
	if assessment == nil {
		comp, err := s.agg.Build(ctx, retailerID)
		if err != nil {
			return nil, err
		}
		if comp == nil {
			return nil, ErrProfileNotFound
		}
		fresh := scoring.Assess(comp.Input, s.opts, s.now().UTC())
		assessment = &fresh
	}
	return scoring.Forecast(*assessment, scoring.DefaultForecastOptions(s.opts)), nil
}

// Portfolio summarises the latest assessment of every profile. Results are
// cached until the next batch recalculation.
func (s *Service) Portfolio(ctx context.Context) (scoring.PortfolioSummary, error) {
	var summary scoring.PortfolioSummary
	err := s.cache.FetchJSON(ctx, portfolioViewKey, &summary, func(ctx context.Context) (any, error) {
		assessments, err := s.repo.ListLatestAssessments(ctx)
		if err != nil {
			return nil, err
		}
		return scoring.Summarize(assessments), nil
	})
	return summary, err
}
