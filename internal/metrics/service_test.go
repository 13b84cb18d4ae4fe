package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/transitops/transitops/internal/gateway"
	"github.com/transitops/transitops/internal/scope"
)

type mockGateway struct {
	mu sync.Mutex

	companies     []gateway.Company
	companiesErr  error
	company       gateway.Company
	companyErr    error
	vehicles      []gateway.Vehicle
	vehiclesErr   error
	bookings      []gateway.Booking
	bookingsErr   error
	bookingsFn    func(from, to time.Time) ([]gateway.Booking, error)
	statusCounts  []gateway.StatusCount
	statusErr     error
	routeCounts   []gateway.RouteCount
	series        []gateway.RevenuePoint
	exportPayload []byte
	exportType    string
	exportErr     error

	calls map[string]int
}

func (m *mockGateway) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[op]++
}

func (m *mockGateway) callCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockGateway) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *mockGateway) ListCompanies(ctx context.Context) ([]gateway.Company, error) {
	m.record("companies")
	return m.companies, m.companiesErr
}

func (m *mockGateway) GetCompany(ctx context.Context, id int64) (gateway.Company, error) {
	m.record("company")
	return m.company, m.companyErr
}

func (m *mockGateway) ListVehicles(ctx context.Context, companyID *int64) ([]gateway.Vehicle, error) {
	m.record("vehicles")
	if m.vehiclesErr != nil {
		return nil, m.vehiclesErr
	}
	if companyID == nil {
		return m.vehicles, nil
	}
	out := make([]gateway.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		if v.CompanyID == *companyID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mockGateway) ListBookings(ctx context.Context, from, to time.Time) ([]gateway.Booking, error) {
	m.record("bookings")
	if m.bookingsFn != nil {
		return m.bookingsFn(from, to)
	}
	return m.bookings, m.bookingsErr
}

func (m *mockGateway) GetRevenueSeries(ctx context.Context, from, to time.Time, companyID *int64, granularity string) ([]gateway.RevenuePoint, error) {
	m.record("series")
	return m.series, nil
}

func (m *mockGateway) GetBookingStatusCounts(ctx context.Context, companyID *int64) ([]gateway.StatusCount, error) {
	m.record("status")
	return m.statusCounts, m.statusErr
}

func (m *mockGateway) GetBookingRouteCounts(ctx context.Context, companyID *int64) ([]gateway.RouteCount, error) {
	m.record("routes")
	return m.routeCounts, nil
}

func (m *mockGateway) ExportReport(ctx context.Context, format string, from, to time.Time, companyID *int64) ([]byte, string, error) {
	m.record("export")
	return m.exportPayload, m.exportType, m.exportErr
}

func newTestService(t *testing.T, gw Gateway) (*Service, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	svc := NewService(gw, cache, nil)
	return svc, func() {
		_ = client.Close()
		mr.Close()
	}
}

func boolp(v bool) *bool           { return &v }
func timep(v time.Time) *time.Time { return &v }

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// fixtureGateway reproduces the canonical two-vehicle company: B1 and B2 are
// scanned in on the company's vehicles, B3 was scanned on another company's
// vehicle, B4 was bought but never validated.
func fixtureGateway() *mockGateway {
	scanned := time.Date(2025, time.May, 3, 9, 30, 0, 0, time.UTC)
	return &mockGateway{
		company: gateway.Company{ID: 7, Name: "Blue Line Express"},
		vehicles: []gateway.Vehicle{
			{ID: 1, CompanyID: 7, IsActive: boolp(true)},
			{ID: 2, CompanyID: 7},
			{ID: 3, CompanyID: 8, IsActive: boolp(true)},
		},
		bookings: []gateway.Booking{
			{ID: 101, VehicleID: 1, Fare: dec(1000), ScannedInAt: timep(scanned)},
			{ID: 102, VehicleID: 2, Fare: dec(500), HasParcel: true, ParcelFare: dec(200), ScannedInAt: timep(scanned)},
			{ID: 103, VehicleID: 3, Fare: dec(9999), ScannedInAt: timep(scanned)},
			{ID: 104, VehicleID: 1, Fare: dec(300)},
		},
	}
}

func tenDayRange() DateRange {
	return DateRange{Start: day(2025, time.May, 1), End: day(2025, time.May, 10)}
}

func TestComputeMetricsSingleCompany(t *testing.T) {
	gw := fixtureGateway()
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	snapshot, err := svc.ComputeMetrics(context.Background(), scope.ForCompany(7), tenDayRange())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if !snapshot.Complete {
		t.Fatalf("expected complete snapshot, warnings: %v", snapshot.Warnings)
	}
	if snapshot.Company == nil || snapshot.Company.Name != "Blue Line Express" {
		t.Fatalf("expected company details, got %+v", snapshot.Company)
	}
	if snapshot.TotalBookings != 2 {
		t.Fatalf("expected 2 qualifying bookings, got %d", snapshot.TotalBookings)
	}
	if !snapshot.TotalRevenue.Equal(dec(1700)) {
		t.Fatalf("expected revenue 1700, got %s", snapshot.TotalRevenue)
	}
	if snapshot.TotalActiveVehicles != 2 {
		t.Fatalf("expected 2 active vehicles, got %d", snapshot.TotalActiveVehicles)
	}
	if !snapshot.AverageFare.Equal(dec(850)) {
		t.Fatalf("expected average fare 850, got %s", snapshot.AverageFare)
	}
	if !snapshot.RevenuePerVehicle.Equal(dec(850)) {
		t.Fatalf("expected revenue per vehicle 850, got %s", snapshot.RevenuePerVehicle)
	}
	if !snapshot.BookingsPerDay.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("expected 0.2 bookings per day, got %s", snapshot.BookingsPerDay)
	}
}

func TestComputeMetricsAllCompanies(t *testing.T) {
	gw := fixtureGateway()
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	snapshot, err := svc.ComputeMetrics(context.Background(), scope.All(), tenDayRange())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snapshot.Company != nil {
		t.Fatalf("all-companies snapshot must carry no company, got %+v", snapshot.Company)
	}
	if snapshot.TotalBookings != 3 {
		t.Fatalf("expected 3 scanned bookings, got %d", snapshot.TotalBookings)
	}
	if !snapshot.TotalRevenue.Equal(dec(11699)) {
		t.Fatalf("expected revenue 11699, got %s", snapshot.TotalRevenue)
	}
	if snapshot.TotalActiveVehicles != 3 {
		t.Fatalf("expected 3 active vehicles, got %d", snapshot.TotalActiveVehicles)
	}
	if gw.callCount("company") != 0 {
		t.Fatalf("all-companies path must not fetch company details")
	}
}

func TestComputeMetricsEmptyInputsYieldZeroes(t *testing.T) {
	gw := &mockGateway{company: gateway.Company{ID: 7}}
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	snapshot, err := svc.ComputeMetrics(context.Background(), scope.ForCompany(7), tenDayRange())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !snapshot.Complete {
		t.Fatalf("empty upstream data is not a failure: %v", snapshot.Warnings)
	}
	for name, value := range map[string]decimal.Decimal{
		"revenue":             snapshot.TotalRevenue,
		"average fare":        snapshot.AverageFare,
		"revenue per vehicle": snapshot.RevenuePerVehicle,
		"bookings per day":    snapshot.BookingsPerDay,
	} {
		if !value.IsZero() {
			t.Fatalf("expected zero %s, got %s", name, value)
		}
	}
}

func TestComputeMetricsCachesUpstreamReads(t *testing.T) {
	gw := fixtureGateway()
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	ctx := context.Background()
	sc := scope.ForCompany(7)
	rng := tenDayRange()

	first, err := svc.ComputeMetrics(ctx, sc, rng)
	if err != nil {
		t.Fatalf("first compute: %v", err)
	}
	callsAfterFirst := gw.totalCalls()
	if callsAfterFirst == 0 {
		t.Fatalf("expected upstream fetches on cold cache")
	}

	second, err := svc.ComputeMetrics(ctx, sc, rng)
	if err != nil {
		t.Fatalf("second compute: %v", err)
	}
	if gw.totalCalls() != callsAfterFirst {
		t.Fatalf("expected zero upstream fetches within TTL, got %d extra", gw.totalCalls()-callsAfterFirst)
	}

	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("cached snapshot differs:\n%s\n%s", firstJSON, secondJSON)
	}
}

func TestComputeMetricsCacheBumpForcesRefetch(t *testing.T) {
	gw := fixtureGateway()
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	ctx := context.Background()
	if _, err := svc.ComputeMetrics(ctx, scope.ForCompany(7), tenDayRange()); err != nil {
		t.Fatalf("compute: %v", err)
	}
	before := gw.totalCalls()

	if err := svc.Cache().Bump(ctx); err != nil {
		t.Fatalf("bump: %v", err)
	}
	if _, err := svc.ComputeMetrics(ctx, scope.ForCompany(7), tenDayRange()); err != nil {
		t.Fatalf("compute after bump: %v", err)
	}
	if gw.totalCalls() == before {
		t.Fatalf("expected refetch after cache bump")
	}
}

func TestComputeMetricsDegradesOnPartialFailure(t *testing.T) {
	gw := fixtureGateway()
	gw.vehiclesErr = errors.New("boom")
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	snapshot, err := svc.ComputeMetrics(context.Background(), scope.ForCompany(7), tenDayRange())
	if err != nil {
		t.Fatalf("partial failure must not abort: %v", err)
	}
	if snapshot.Complete {
		t.Fatalf("expected degraded snapshot")
	}
	if len(snapshot.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", snapshot.Warnings)
	}
	if snapshot.TotalActiveVehicles != 0 {
		t.Fatalf("vehicles degraded to empty, got %d", snapshot.TotalActiveVehicles)
	}
	// Without a vehicle set no booking can be attributed to the company.
	if snapshot.TotalBookings != 0 || !snapshot.TotalRevenue.IsZero() {
		t.Fatalf("expected zeroed metrics, got %d / %s", snapshot.TotalBookings, snapshot.TotalRevenue)
	}
}

func TestComputeMetricsFailedFetchIsNotCached(t *testing.T) {
	gw := fixtureGateway()
	gw.bookingsErr = errors.New("gateway down")
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	ctx := context.Background()
	snapshot, err := svc.ComputeMetrics(ctx, scope.ForCompany(7), tenDayRange())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snapshot.Complete {
		t.Fatalf("expected warning for bookings")
	}

	gw.bookingsErr = nil
	recovered, err := svc.ComputeMetrics(ctx, scope.ForCompany(7), tenDayRange())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !recovered.Complete {
		t.Fatalf("expected recovery once upstream is back: %v", recovered.Warnings)
	}
	if recovered.TotalBookings != 2 {
		t.Fatalf("expected 2 bookings after recovery, got %d", recovered.TotalBookings)
	}
}

func TestComputeMetricsRejectsInvalidRange(t *testing.T) {
	gw := fixtureGateway()
	svc, cleanup := newTestService(t, gw)
	defer cleanup()

	bad := DateRange{Start: day(2025, time.May, 10), End: day(2025, time.May, 1)}
	_, err := svc.ComputeMetrics(context.Background(), scope.All(), bad)
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange, got %v", err)
	}
	if gw.totalCalls() != 0 {
		t.Fatalf("invalid range must be rejected before any upstream call")
	}
}
