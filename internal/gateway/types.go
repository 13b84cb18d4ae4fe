package gateway

import (
	"time"

	"github.com/shopspring/decimal"
)

// Company is a read-only projection of an operator company.
type Company struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
}

// Vehicle carries the identity, ownership and activity status of a bus.
type Vehicle struct {
	ID        int64 `json:"id"`
	CompanyID int64 `json:"company_id"`
	IsActive  *bool `json:"is_active"`
}

// Active reports whether the vehicle counts as operational. Vehicles without
// an explicit status are treated as active, a legacy default the upstream
// fleet registry still relies on.
func (v Vehicle) Active() bool {
	return v.IsActive == nil || *v.IsActive
}

// Booking is a single ticket purchase, optionally with a parcel attached.
type Booking struct {
	ID          int64           `json:"id"`
	VehicleID   int64           `json:"vehicle_id"`
	Fare        decimal.Decimal `json:"fare"`
	HasParcel   bool            `json:"has_parcel"`
	ParcelFare  decimal.Decimal `json:"parcel_fare"`
	ScannedInAt *time.Time      `json:"scanned_in_at"`
}

// ScannedIn reports whether the ticket was validated on a vehicle. Only
// scanned-in bookings contribute to revenue and volume figures.
func (b Booking) ScannedIn() bool {
	return b.ScannedInAt != nil
}

// Revenue returns the total amount the booking earned, including the parcel
// surcharge when one was carried.
func (b Booking) Revenue() decimal.Decimal {
	if b.HasParcel {
		return b.Fare.Add(b.ParcelFare)
	}
	return b.Fare
}

// RevenuePoint is one bucket of the chart-oriented revenue series.
type RevenuePoint struct {
	Date     time.Time       `json:"date"`
	Revenue  decimal.Decimal `json:"revenue"`
	Bookings int64           `json:"bookings"`
}

// StatusCount is a booking tally per lifecycle status.
type StatusCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// RouteCount is a booking tally per route.
type RouteCount struct {
	RouteID int64 `json:"route_id"`
	Count   int64 `json:"count"`
}
