// Package export serialises dashboard snapshots for download.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/transitops/transitops/internal/metrics"
)

// WriteSnapshotCSV serialises a metrics snapshot to a CSV representation.
func WriteSnapshotCSV(w io.Writer, snapshot metrics.Snapshot) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value"}); err != nil {
		return err
	}
	company := "All companies"
	if snapshot.Company != nil {
		company = snapshot.Company.Name
	}
	records := [][]string{
		{"Company", company},
		{"Period Start", snapshot.Period.Start.Format("2006-01-02")},
		{"Period End", snapshot.Period.End.Format("2006-01-02")},
		{"Total Revenue", snapshot.TotalRevenue.String()},
		{"Total Bookings", strconv.Itoa(snapshot.TotalBookings)},
		{"Active Vehicles", strconv.Itoa(snapshot.TotalActiveVehicles)},
		{"Average Fare", snapshot.AverageFare.StringFixed(2)},
		{"Revenue Per Vehicle", snapshot.RevenuePerVehicle.StringFixed(2)},
		{"Bookings Per Day", snapshot.BookingsPerDay.StringFixed(2)},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteDistributionCSV emits a labeled breakdown as CSV.
func WriteDistributionCSV(w io.Writer, title string, buckets []metrics.Bucket) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{title, "Value"}); err != nil {
		return err
	}
	for _, bucket := range buckets {
		if err := writer.Write([]string{bucket.Label, bucket.Value.String()}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
