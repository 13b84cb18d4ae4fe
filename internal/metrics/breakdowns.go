package metrics

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/transitops/transitops/internal/gateway"
	"github.com/transitops/transitops/internal/scope"
)

// StatusDistribution returns the booking-status breakdown for a scope, the
// long tail rolled into "Other statuses".
func (s *Service) StatusDistribution(ctx context.Context, sc scope.Scope) ([]Bucket, error) {
	var counts []gateway.StatusCount
	err := s.cache.FetchJSON(ctx, s.cache.buildKey(ctx, keyStatusCounts(sc.Token())), &counts, func(ctx context.Context) (interface{}, error) {
		return s.gw.GetBookingStatusCounts(ctx, sc.CompanyID)
	})
	if err != nil {
		return nil, err
	}
	items := make([]Bucket, 0, len(counts))
	for _, c := range counts {
		items = append(items, Bucket{Label: c.Label, Value: decimal.NewFromInt(c.Count)})
	}
	return BuildDistribution(items, DefaultTopN, "Other statuses"), nil
}

// RouteDistribution returns the bookings-per-route breakdown for a scope,
// the long tail rolled into "Other routes".
func (s *Service) RouteDistribution(ctx context.Context, sc scope.Scope) ([]Bucket, error) {
	var counts []gateway.RouteCount
	err := s.cache.FetchJSON(ctx, s.cache.buildKey(ctx, keyRouteCounts(sc.Token())), &counts, func(ctx context.Context) (interface{}, error) {
		return s.gw.GetBookingRouteCounts(ctx, sc.CompanyID)
	})
	if err != nil {
		return nil, err
	}
	items := make([]Bucket, 0, len(counts))
	for _, c := range counts {
		items = append(items, Bucket{Label: fmt.Sprintf("Route %d", c.RouteID), Value: decimal.NewFromInt(c.Count)})
	}
	return BuildDistribution(items, DefaultTopN, "Other routes"), nil
}

// RevenueByCompany breaks scanned-in revenue for the period down by operator
// company, keeping the top earners and rolling the rest into "Other
// companies". The company join goes through the vehicle that scanned the
// booking in.
func (s *Service) RevenueByCompany(ctx context.Context, rng DateRange) ([]Bucket, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	var (
		companies []gateway.Company
		vehicles  []gateway.Vehicle
		bookings  []gateway.Booking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.cache.FetchJSON(gctx, s.cache.buildKey(gctx, keyCompanies()), &companies, func(ctx context.Context) (interface{}, error) {
			return s.gw.ListCompanies(ctx)
		})
	})
	g.Go(func() error {
		return s.cache.FetchJSON(gctx, s.cache.buildKey(gctx, keyVehicles(scope.AllCompanies)), &vehicles, func(ctx context.Context) (interface{}, error) {
			return s.gw.ListVehicles(ctx, nil)
		})
	})
	g.Go(func() error {
		return s.cache.FetchJSON(gctx, s.cache.buildKey(gctx, keyBookings(rng)), &bookings, func(ctx context.Context) (interface{}, error) {
			return s.gw.ListBookings(ctx, rng.Start, rng.End)
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vehicleCompany := make(map[int64]int64, len(vehicles))
	for _, v := range vehicles {
		vehicleCompany[v.ID] = v.CompanyID
	}
	revenue := make(map[int64]decimal.Decimal, len(companies))
	for _, b := range bookings {
		if !b.ScannedIn() {
			continue
		}
		companyID, ok := vehicleCompany[b.VehicleID]
		if !ok {
			continue
		}
		revenue[companyID] = revenue[companyID].Add(b.Revenue())
	}

	items := make([]Bucket, 0, len(companies))
	for _, company := range companies {
		items = append(items, Bucket{Label: company.Name, Value: revenue[company.ID]})
	}
	return BuildDistribution(items, DefaultTopN, "Other companies"), nil
}

// RevenueSeries returns the chart-oriented revenue series for a scope.
func (s *Service) RevenueSeries(ctx context.Context, sc scope.Scope, rng DateRange, granularity string) ([]gateway.RevenuePoint, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if granularity == "" {
		granularity = "day"
	}
	var points []gateway.RevenuePoint
	err := s.cache.FetchJSON(ctx, s.cache.buildKey(ctx, keyRevenueSeries(sc.Token(), rng, granularity)), &points, func(ctx context.Context) (interface{}, error) {
		return s.gw.GetRevenueSeries(ctx, rng.Start, rng.End, sc.CompanyID, granularity)
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// ExportReport delegates to the backend export endpoint and hands the binary
// payload through unchanged. Export failures surface directly; nothing is
// retried here.
func (s *Service) ExportReport(ctx context.Context, sc scope.Scope, rng DateRange, format string) ([]byte, string, error) {
	if err := rng.Validate(); err != nil {
		return nil, "", err
	}
	payload, contentType, err := s.gw.ExportReport(ctx, format, rng.Start, rng.End, sc.CompanyID)
	if err != nil {
		return nil, "", fmt.Errorf("metrics: export report: %w", err)
	}
	return payload, contentType, nil
}
