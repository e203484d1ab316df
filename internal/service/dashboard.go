package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"bazar/backend/internal/cache"
	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
)

// Dashboard returns the cached summary when present. Concurrent misses share
// one computation.
func (s *Service) Dashboard(ctx context.Context) (domain.DashboardSummary, error) {
	if cached, ok, err := s.cache.Get(ctx, cache.DashboardKey); err != nil {
		s.log.Warn().Err(err).Msg("dashboard cache read failed")
	} else if ok {
		return *cached, nil
	}

	result, err, _ := s.flight.Do(cache.DashboardKey, func() (any, error) {
		gen := s.dashboardGen.Load()
		summary, err := s.computeDashboard(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, cache.DashboardKey, &summary, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Msg("dashboard cache write failed")
		}
		// A write landed while computing; the summary may predate it.
		if s.dashboardGen.Load() != gen {
			if err := s.cache.Delete(ctx, cache.DashboardKey); err != nil {
				s.log.Warn().Err(err).Msg("dashboard cache invalidation failed")
			}
		}
		return summary, nil
	})
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	return result.(domain.DashboardSummary), nil
}

func (s *Service) computeDashboard(ctx context.Context) (domain.DashboardSummary, error) {
	now := s.now()
	summary := domain.DashboardSummary{GeneratedAt: now}
	active := store.ListFilter{Status: domain.StatusActive, Limit: 1}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page, err := s.repo.ListSuppliers(gctx, active)
		summary.Suppliers = page.Total
		return err
	})
	g.Go(func() error {
		page, err := s.repo.ListClients(gctx, active)
		summary.Clients = page.Total
		return err
	})
	g.Go(func() error {
		page, err := s.repo.ListProducts(gctx, active)
		summary.Products = page.Total
		return err
	})
	g.Go(func() error {
		lowStock := active
		lowStock.LowStock = true
		page, err := s.repo.ListProducts(gctx, lowStock)
		summary.LowStockProducts = page.Total
		return err
	})
	g.Go(func() error {
		stats, err := s.repo.InvoiceStats(gctx, now)
		summary.Invoices = stats.Count
		summary.OverdueInvoices = stats.Overdue
		summary.TotalSales = stats.TotalSales
		summary.OutstandingAmount = stats.Outstanding
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.DashboardSummary{}, err
	}
	return summary, nil
}
