package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/transitops/transitops/internal/gateway"
	"github.com/transitops/transitops/internal/scope"
)

func TestStatusDistributionRollsUpTail(t *testing.T) {
	gw := &mockGateway{
		statusCounts: []gateway.StatusCount{
			{Label: "completed", Count: 120},
			{Label: "confirmed", Count: 45},
			{Label: "pending", Count: 30},
			{Label: "cancelled", Count: 12},
			{Label: "refunded", Count: 8},
			{Label: "expired", Count: 3},
			{Label: "disputed", Count: 2},
		},
	}
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	buckets, err := svc.StatusDistribution(context.Background(), scope.All())
	if err != nil {
		t.Fatalf("status distribution: %v", err)
	}
	if len(buckets) != DefaultTopN+1 {
		t.Fatalf("expected %d buckets, got %d", DefaultTopN+1, len(buckets))
	}
	last := buckets[len(buckets)-1]
	if last.Label != "Other statuses" || !last.Value.Equal(dec(5)) {
		t.Fatalf("tail bucket = %s/%s", last.Label, last.Value)
	}
	if buckets[0].Label != "completed" {
		t.Fatalf("expected completed first, got %s", buckets[0].Label)
	}
}

func TestRouteDistributionLabels(t *testing.T) {
	gw := &mockGateway{
		routeCounts: []gateway.RouteCount{
			{RouteID: 14, Count: 60},
			{RouteID: 3, Count: 25},
		},
	}
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	buckets, err := svc.RouteDistribution(context.Background(), scope.ForCompany(7))
	if err != nil {
		t.Fatalf("route distribution: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Label != "Route 14" || buckets[1].Label != "Route 3" {
		t.Fatalf("unexpected labels: %s / %s", buckets[0].Label, buckets[1].Label)
	}
}

func TestRevenueByCompanyJoinsThroughVehicles(t *testing.T) {
	scanned := day(2025, time.May, 2).Add(8 * time.Hour)
	gw := &mockGateway{
		companies: []gateway.Company{
			{ID: 7, Name: "Blue Line Express"},
			{ID: 8, Name: "Hilltop Shuttles"},
		},
		vehicles: []gateway.Vehicle{
			{ID: 1, CompanyID: 7},
			{ID: 2, CompanyID: 7},
			{ID: 3, CompanyID: 8},
		},
		bookings: []gateway.Booking{
			{ID: 1, VehicleID: 1, Fare: dec(1000), ScannedInAt: &scanned},
			{ID: 2, VehicleID: 2, Fare: dec(500), HasParcel: true, ParcelFare: dec(200), ScannedInAt: &scanned},
			{ID: 3, VehicleID: 3, Fare: dec(400), ScannedInAt: &scanned},
			{ID: 4, VehicleID: 99, Fare: dec(777), ScannedInAt: &scanned},
			{ID: 5, VehicleID: 1, Fare: dec(300)},
		},
	}
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	buckets, err := svc.RevenueByCompany(context.Background(), tenDayRange())
	if err != nil {
		t.Fatalf("revenue by company: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Label != "Blue Line Express" || !buckets[0].Value.Equal(dec(1700)) {
		t.Fatalf("top bucket = %s/%s", buckets[0].Label, buckets[0].Value)
	}
	if buckets[1].Label != "Hilltop Shuttles" || !buckets[1].Value.Equal(dec(400)) {
		t.Fatalf("second bucket = %s/%s", buckets[1].Label, buckets[1].Value)
	}
}

func TestRevenueSeriesDefaultsGranularity(t *testing.T) {
	gw := &mockGateway{
		series: []gateway.RevenuePoint{
			{Date: day(2025, time.May, 1), Revenue: dec(100), Bookings: 2},
			{Date: day(2025, time.May, 2), Revenue: dec(250), Bookings: 3},
		},
	}
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	points, err := svc.RevenueSeries(context.Background(), scope.All(), tenDayRange(), "")
	if err != nil {
		t.Fatalf("revenue series: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
}

func TestExportReportPassesPayloadThrough(t *testing.T) {
	gw := &mockGateway{
		exportPayload: []byte("%PDF-1.7 fake"),
		exportType:    "application/pdf",
	}
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	payload, contentType, err := svc.ExportReport(context.Background(), scope.ForCompany(7), tenDayRange(), "pdf")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if contentType != "application/pdf" {
		t.Fatalf("content type = %s", contentType)
	}
	if string(payload) != "%PDF-1.7 fake" {
		t.Fatalf("payload mangled: %q", payload)
	}
}
