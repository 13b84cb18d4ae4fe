// Package metrics turns raw upstream resources into role-scoped dashboard
// metrics, tolerating partial upstream failure and caching every read behind
// a TTL.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/transitops/transitops/internal/gateway"
)

// Gateway is the subset of the ticketing backend the engine reads from.
type Gateway interface {
	ListCompanies(ctx context.Context) ([]gateway.Company, error)
	GetCompany(ctx context.Context, id int64) (gateway.Company, error)
	ListVehicles(ctx context.Context, companyID *int64) ([]gateway.Vehicle, error)
	ListBookings(ctx context.Context, from, to time.Time) ([]gateway.Booking, error)
	GetRevenueSeries(ctx context.Context, from, to time.Time, companyID *int64, granularity string) ([]gateway.RevenuePoint, error)
	GetBookingStatusCounts(ctx context.Context, companyID *int64) ([]gateway.StatusCount, error)
	GetBookingRouteCounts(ctx context.Context, companyID *int64) ([]gateway.RouteCount, error)
	ExportReport(ctx context.Context, format string, from, to time.Time, companyID *int64) ([]byte, string, error)
}

// Service coordinates upstream reads with the cache layer and derives the
// dashboard snapshots.
type Service struct {
	gw     Gateway
	cache  *Cache
	logger *slog.Logger
}

// NewService wires a Gateway with a Cache helper.
func NewService(gw Gateway, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gw: gw, cache: cache, logger: logger}
}

// Cache exposes the cache helper for invalidation endpoints and warmup jobs.
func (s *Service) Cache() *Cache {
	return s.cache
}
