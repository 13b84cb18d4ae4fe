package metrics

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/transitops/transitops/internal/scope"
)

// GrowthComparison holds revenue for a period and the immediately preceding
// window of equal length, plus the derived rate of change.
type GrowthComparison struct {
	CurrentPeriod     DateRange       `json:"current_period"`
	PreviousPeriod    DateRange       `json:"previous_period"`
	CurrentRevenue    decimal.Decimal `json:"current_revenue"`
	PreviousRevenue   decimal.Decimal `json:"previous_revenue"`
	GrowthRatePercent decimal.Decimal `json:"growth_rate_percent"`
	Complete          bool            `json:"complete"`
	Warnings          []string        `json:"warnings,omitempty"`
}

// CompareGrowth computes period-over-period revenue growth by aggregating
// the current range and the preceding window concurrently. A failed
// aggregation degrades that period's revenue to zero instead of propagating.
func (s *Service) CompareGrowth(ctx context.Context, sc scope.Scope, current DateRange) (GrowthComparison, error) {
	if err := current.Validate(); err != nil {
		return GrowthComparison{}, err
	}
	previous := current.Previous()

	var currentSnap, previousSnap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := s.ComputeMetrics(gctx, sc, current)
		if err != nil {
			return err
		}
		currentSnap = snap
		return nil
	})
	g.Go(func() error {
		snap, err := s.ComputeMetrics(gctx, sc, previous)
		if err != nil {
			return err
		}
		previousSnap = snap
		return nil
	})
	if err := g.Wait(); err != nil {
		return GrowthComparison{}, err
	}

	warnings := append(currentSnap.Warnings, previousSnap.Warnings...)
	if len(warnings) > 0 {
		s.logger.Warn("growth comparison degraded",
			slog.String("scope", sc.Token()),
			slog.Int("warnings", len(warnings)))
	}

	return GrowthComparison{
		CurrentPeriod:     current,
		PreviousPeriod:    previous,
		CurrentRevenue:    currentSnap.TotalRevenue,
		PreviousRevenue:   previousSnap.TotalRevenue,
		GrowthRatePercent: growthRate(previousSnap.TotalRevenue, currentSnap.TotalRevenue),
		Complete:          len(warnings) == 0,
		Warnings:          warnings,
	}, nil
}

// growthRate applies the zero-base convention: growing from nothing is 100%,
// staying at nothing is 0%.
func growthRate(previous, current decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		if current.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(100)
	}
	return current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
}
