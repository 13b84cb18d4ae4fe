package metrics

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultTopN is how many buckets a breakdown keeps before rolling the long
// tail into a synthetic "Other" bucket.
const DefaultTopN = 5

// Bucket is one labeled value in a breakdown.
type Bucket struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

// BuildDistribution sorts items descending by value, keeps the top n and
// rolls the remainder into one bucket labeled otherLabel. The sort is stable
// so ties keep their input order. The sum of the returned values always
// equals the sum of the inputs.
func BuildDistribution(items []Bucket, n int, otherLabel string) []Bucket {
	if n <= 0 {
		n = DefaultTopN
	}
	sorted := make([]Bucket, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value.GreaterThan(sorted[j].Value)
	})
	if len(sorted) <= n {
		return sorted
	}

	rest := decimal.Zero
	for _, item := range sorted[n:] {
		rest = rest.Add(item.Value)
	}
	top := sorted[:n:n]
	if rest.IsZero() {
		return top
	}
	return append(top, Bucket{Label: otherLabel, Value: rest})
}
