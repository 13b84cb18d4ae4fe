package gateway

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestVehicleActiveDefaultsToTrue(t *testing.T) {
	yes, no := true, false
	cases := []struct {
		name    string
		vehicle Vehicle
		want    bool
	}{
		{"explicitly active", Vehicle{IsActive: &yes}, true},
		{"explicitly inactive", Vehicle{IsActive: &no}, false},
		{"legacy record without status", Vehicle{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.vehicle.Active(); got != tc.want {
				t.Fatalf("Active() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBookingRevenueIncludesParcelOnlyWhenCarried(t *testing.T) {
	plain := Booking{Fare: decimal.NewFromInt(500), ParcelFare: decimal.NewFromInt(200)}
	if !plain.Revenue().Equal(decimal.NewFromInt(500)) {
		t.Fatalf("revenue without parcel = %s", plain.Revenue())
	}

	withParcel := Booking{Fare: decimal.NewFromInt(500), HasParcel: true, ParcelFare: decimal.NewFromInt(200)}
	if !withParcel.Revenue().Equal(decimal.NewFromInt(700)) {
		t.Fatalf("revenue with parcel = %s", withParcel.Revenue())
	}
}

func TestBookingScannedIn(t *testing.T) {
	if (Booking{}).ScannedIn() {
		t.Fatalf("unscanned booking reported as scanned")
	}
	ts := time.Now()
	if !(Booking{ScannedInAt: &ts}).ScannedIn() {
		t.Fatalf("scanned booking not reported")
	}
}
