package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/transitops/transitops/internal/gateway"
	"github.com/transitops/transitops/internal/scope"
)

// Snapshot is the derived metrics set for one scope and period. Complete is
// false when any upstream read failed and its input was degraded to empty;
// Warnings then names the widgets whose data is missing.
type Snapshot struct {
	Period              DateRange        `json:"period"`
	Company             *gateway.Company `json:"company,omitempty"`
	TotalRevenue        decimal.Decimal  `json:"total_revenue"`
	TotalBookings       int              `json:"total_bookings"`
	TotalActiveVehicles int              `json:"total_active_vehicles"`
	AverageFare         decimal.Decimal  `json:"average_fare"`
	RevenuePerVehicle   decimal.Decimal  `json:"revenue_per_vehicle"`
	BookingsPerDay      decimal.Decimal  `json:"bookings_per_day"`
	Complete            bool             `json:"complete"`
	Warnings            []string         `json:"warnings,omitempty"`
}

// ComputeMetrics derives the dashboard snapshot for a scope and period. The
// company, vehicle and booking reads fan out concurrently; each one that
// fails degrades to an empty input and a warning rather than aborting the
// snapshot. The only errors returned are an invalid range and context
// cancellation.
func (s *Service) ComputeMetrics(ctx context.Context, sc scope.Scope, rng DateRange) (Snapshot, error) {
	if err := rng.Validate(); err != nil {
		return Snapshot{}, err
	}

	var (
		mu       sync.Mutex
		warnings []string
		company  *gateway.Company
		vehicles []gateway.Vehicle
		bookings []gateway.Booking
	)
	warn := func(resource string, err error) {
		s.logger.Warn("upstream fetch degraded",
			slog.String("resource", resource),
			slog.Any("error", err))
		mu.Lock()
		warnings = append(warnings, fmt.Sprintf("%s unavailable: %v", resource, err))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	if sc.CompanyID != nil {
		id := *sc.CompanyID
		g.Go(func() error {
			var detail gateway.Company
			err := s.cache.FetchJSON(gctx, s.cache.buildKey(gctx, keyCompany(id)), &detail, func(ctx context.Context) (interface{}, error) {
				return s.gw.GetCompany(ctx, id)
			})
			if err != nil {
				warn("company details", err)
				return nil
			}
			company = &detail
			return nil
		})
	}

	g.Go(func() error {
		err := s.cache.FetchJSON(gctx, s.cache.buildKey(gctx, keyVehicles(sc.Token())), &vehicles, func(ctx context.Context) (interface{}, error) {
			return s.gw.ListVehicles(ctx, sc.CompanyID)
		})
		if err != nil {
			warn("vehicles", err)
			vehicles = nil
		}
		return nil
	})

	g.Go(func() error {
		err := s.cache.FetchJSON(gctx, s.cache.buildKey(gctx, keyBookings(rng)), &bookings, func(ctx context.Context) (interface{}, error) {
			return s.gw.ListBookings(ctx, rng.Start, rng.End)
		})
		if err != nil {
			warn("bookings", err)
			bookings = nil
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	snapshot := deriveSnapshot(sc, rng, vehicles, bookings)
	snapshot.Company = company
	snapshot.Warnings = warnings
	snapshot.Complete = len(warnings) == 0
	return snapshot, nil
}

// deriveSnapshot runs the synchronous aggregation once all inputs settled.
// A booking counts for a company only when one of that company's vehicles
// scanned it in, not merely because it was bought for a route the company
// serves.
func deriveSnapshot(sc scope.Scope, rng DateRange, vehicles []gateway.Vehicle, bookings []gateway.Booking) Snapshot {
	fleet := make(map[int64]struct{}, len(vehicles))
	activeVehicles := 0
	for _, v := range vehicles {
		fleet[v.ID] = struct{}{}
		if v.Active() {
			activeVehicles++
		}
	}

	totalRevenue := decimal.Zero
	totalBookings := 0
	for _, b := range bookings {
		if !b.ScannedIn() {
			continue
		}
		if sc.CompanyID != nil {
			if _, ok := fleet[b.VehicleID]; !ok {
				continue
			}
		}
		totalRevenue = totalRevenue.Add(b.Revenue())
		totalBookings++
	}

	snapshot := Snapshot{
		Period:              rng,
		TotalRevenue:        totalRevenue,
		TotalBookings:       totalBookings,
		TotalActiveVehicles: activeVehicles,
		AverageFare:         decimal.Zero,
		RevenuePerVehicle:   decimal.Zero,
		BookingsPerDay:      decimal.Zero,
	}
	if totalBookings > 0 {
		snapshot.AverageFare = totalRevenue.Div(decimal.NewFromInt(int64(totalBookings)))
	}
	if activeVehicles > 0 {
		snapshot.RevenuePerVehicle = totalRevenue.Div(decimal.NewFromInt(int64(activeVehicles)))
	}
	if days := rng.Days(); days > 0 {
		snapshot.BookingsPerDay = decimal.NewFromInt(int64(totalBookings)).Div(decimal.NewFromInt(int64(days)))
	}
	return snapshot
}
