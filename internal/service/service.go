package service

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"bazar/backend/internal/cache"
	"bazar/backend/internal/domain"
	"bazar/backend/internal/logger"
	"bazar/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// actorName is what stock movements and status history record as the actor.
func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

// Options tunes a Service. A nil DefaultTaxRate means 19; an explicit zero is
// kept.
type Options struct {
	InvoiceDueDays    int
	DefaultTaxRate    *decimal.Decimal
	DashboardCacheTTL time.Duration
	Cache             cache.DashboardCache
	Now               func() time.Time
}

type Service struct {
	repo     store.Repository
	cache    cache.DashboardCache
	log      zerolog.Logger
	dueDays  int
	taxRate  decimal.Decimal
	cacheTTL time.Duration
	now      func() time.Time
	flight   singleflight.Group
	// dashboardGen counts invalidations so a computation that overlapped a
	// write can drop what it cached.
	dashboardGen atomic.Uint64
}

func New(repo store.Repository, opts Options) *Service {
	if opts.InvoiceDueDays <= 0 {
		opts.InvoiceDueDays = 30
	}
	taxRate := decimal.NewFromInt(19)
	if opts.DefaultTaxRate != nil {
		taxRate = *opts.DefaultTaxRate
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopDashboardCache{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:     repo,
		cache:    opts.Cache,
		log:      logger.WithComponent("service"),
		dueDays:  opts.InvoiceDueDays,
		taxRate:  taxRate,
		cacheTTL: opts.DashboardCacheTTL,
		now:      opts.Now,
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entity string, id string) {
	s.log.Info().
		Str("action", action).
		Str("entity", entity).
		Str("id", id).
		Str("actor", actorName(ctx)).
		Msg("audit")
}

// invalidateDashboard drops the cached summary after a write; failures only
// delay freshness until the TTL expires.
func (s *Service) invalidateDashboard(ctx context.Context) {
	s.dashboardGen.Add(1)
	if err := s.cache.Delete(ctx, cache.DashboardKey); err != nil {
		s.log.Warn().Err(err).Msg("dashboard cache invalidation failed")
	}
}

func trimmed(val string) string {
	return strings.TrimSpace(val)
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
