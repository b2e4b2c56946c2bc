package replenishment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vendai/vendai-jobs/internal/platform/batch"
	"github.com/vendai/vendai-jobs/internal/records"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	ListOrganizations(ctx context.Context) ([]records.Organization, error)
	ListInventory(ctx context.Context, orgID string) ([]records.InventoryItem, error)
	ListProducts(ctx context.Context, orgID string) ([]records.Product, error)
	ListSupplierSKUs(ctx context.Context, orgID, productID string) ([]records.SupplierSKU, error)
	GetSupplier(ctx context.Context, id string) (records.Supplier, bool, error)
	InsertSuggestion(ctx context.Context, s Suggestion) (bool, error)
	StartRun(ctx context.Context, run JobRun) error
	FinishRun(ctx context.Context, run JobRun) error
}

// Service generates replenishment suggestions.
type Service struct {
	repo   RepositoryPort
	limit  int
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service. limit bounds the organizations handled in parallel.
func NewService(repo RepositoryPort, limit int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, limit: limit, logger: logger.With(slog.String("component", "replenishment")), now: time.Now}
}

// Run checks every organization and records the run in replenishment_jobs.
func (s *Service) Run(ctx context.Context, triggeredBy string) (Summary, error) {
	start := s.now()
	run := JobRun{
		ID:          uuid.New(),
		Type:        JobTypeDailyCheck,
		Status:      RunRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   start.UTC(),
	}
	if err := s.repo.StartRun(ctx, run); err != nil {
		return Summary{}, fmt.Errorf("replenishment: start run: %w", err)
	}

	orgs, err := s.repo.ListOrganizations(ctx)
	if err != nil {
		run.Status = RunFailed
		run.CompletedAt = s.now().UTC()
		s.finish(ctx, run)
		return Summary{RunID: run.ID}, fmt.Errorf("replenishment: list organizations: %w", err)
	}
	s.logger.Info("starting replenishment check", slog.Int("organizations", len(orgs)))

	var (
		mu        sync.Mutex
		processed int
		created   int
		errs      []OrgError
	)
	_, err = batch.Each(ctx, s.limit, orgs, func(ctx context.Context, org records.Organization) error {
		n, err := s.generateForOrg(ctx, org.ID)
		if err != nil {
			return err
		}
		mu.Lock()
		processed++
		created += n
		mu.Unlock()
		s.logger.Debug("organization checked", slog.String("org_id", org.ID), slog.Int("suggestions", n))
		return nil
	}, func(org records.Organization, err error) {
		s.logger.Error("failed to process organization", slog.String("org_id", org.ID), slog.Any("error", err))
		mu.Lock()
		errs = append(errs, OrgError{OrgID: org.ID, Error: err.Error()})
		mu.Unlock()
	})

	run.Status = RunCompleted
	if err != nil {
		run.Status = RunFailed
	}
	run.ProcessedOrgs = processed
	run.TotalSuggestions = created
	run.Errors = errs
	run.CompletedAt = s.now().UTC()
	s.finish(ctx, run)

	summary := Summary{
		RunID:            run.ID,
		ProcessedOrgs:    processed,
		TotalSuggestions: created,
		Errors:           errs,
		Duration:         s.now().Sub(start),
	}
	if err != nil {
		return summary, err
	}
	s.logger.Info("replenishment check completed",
		slog.Int("processed_orgs", summary.ProcessedOrgs),
		slog.Int("total_suggestions", summary.TotalSuggestions),
		slog.Int("error_count", len(summary.Errors)),
		slog.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (s *Service) finish(ctx context.Context, run JobRun) {
	if err := s.repo.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("record replenishment run", slog.String("run_id", run.ID.String()), slog.Any("error", err))
	}
}

func (s *Service) generateForOrg(ctx context.Context, orgID string) (int, error) {
	items, err := s.repo.ListInventory(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("list inventory: %w", err)
	}
	products, err := s.repo.ListProducts(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("list products: %w", err)
	}
	byID := make(map[string]records.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	suppliers := map[string]*records.Supplier{}

	created := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		productID := item.ProductID.Or("")
		product, ok := byID[productID]
		if productID == "" || !ok {
			continue
		}
		total, low := Needs(item, product)
		if !low {
			continue
		}
		log := s.logger.With(slog.String("org_id", orgID), slog.String("product_id", productID))

		skus, err := s.repo.ListSupplierSKUs(ctx, orgID, productID)
		if err != nil {
			return created, fmt.Errorf("list supplier skus for %s: %w", productID, err)
		}
		sku, ok := BestSKU(skus)
		if !ok {
			log.Warn("no supplier found for product")
			continue
		}

		supplierID := sku.SupplierID.Value
		supplier, seen := suppliers[supplierID]
		if !seen {
			found, exists, err := s.repo.GetSupplier(ctx, supplierID)
			if err != nil {
				return created, fmt.Errorf("get supplier %s: %w", supplierID, err)
			}
			if exists {
				supplier = &found
			}
			suppliers[supplierID] = supplier
		}
		if supplier == nil {
			log.Warn("supplier not found", slog.String("supplier_id", supplierID))
			continue
		}

		suggestion := BuildSuggestion(orgID, product, total, sku, *supplier, s.now().UTC())
		inserted, err := s.repo.InsertSuggestion(ctx, suggestion)
		if err != nil {
			return created, fmt.Errorf("insert suggestion for %s: %w", productID, err)
		}
		if !inserted {
			log.Debug("suggestion already exists")
			continue
		}
		created++
		log.Info("created replenishment suggestion",
			slog.String("priority", string(suggestion.Priority)),
			slog.Int("suggested_qty", suggestion.SuggestedQty),
		)
	}
	return created, nil
}
