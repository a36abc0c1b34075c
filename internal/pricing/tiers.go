package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier is one contiguous usage band billed at a single marginal rate.
// The final band of a schedule is unbounded.
type Tier struct {
	UpperBound int64
	Unbounded  bool
	Rate       decimal.Decimal
	Label      string
}

// TierSchedule is an ordered list of bands covering all usage of a billable
// unit. Bands are contiguous: each band's capacity runs from the previous
// band's upper bound to its own.
type TierSchedule []Tier

// Validate checks the schedule invariants: at least one band, strictly
// increasing bounds, non-negative rates, exactly the last band unbounded.
func (s TierSchedule) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("schedule has no bands")
	}

	var previous int64
	for i, tier := range s {
		if tier.Rate.IsNegative() {
			return fmt.Errorf("band %d rate must not be negative", i)
		}

		last := i == len(s)-1
		if last {
			if !tier.Unbounded {
				return fmt.Errorf("final band must be unbounded")
			}
			continue
		}
		if tier.Unbounded {
			return fmt.Errorf("band %d is unbounded but not final", i)
		}
		if tier.UpperBound <= previous {
			return fmt.Errorf("band %d bound %d does not exceed previous bound %d", i, tier.UpperBound, previous)
		}
		previous = tier.UpperBound
	}

	return nil
}

// Cost walks the schedule in order, consuming each band's capacity before
// moving to the next, and accumulates unitsInBand * bandRate. Marginal rates
// never increase across bands in practice, so the curve is concave; the
// walk itself makes no such assumption.
func (s TierSchedule) Cost(totalUnits int64) decimal.Decimal {
	cost := decimal.Zero
	if totalUnits <= 0 {
		return cost
	}

	remaining := totalUnits
	var consumed int64
	for _, tier := range s {
		units := remaining
		if !tier.Unbounded {
			capacity := tier.UpperBound - consumed
			if capacity < units {
				units = capacity
			}
		}

		cost = cost.Add(tier.Rate.Mul(decimal.NewFromInt(units)))
		remaining -= units
		consumed += units
		if remaining == 0 {
			break
		}
	}

	return cost
}

// Savings is the amount saved relative to paying the first band's rate for
// every unit, clamped to zero.
func (s TierSchedule) Savings(totalUnits int64) decimal.Decimal {
	if len(s) == 0 || totalUnits <= 0 {
		return decimal.Zero
	}

	flat := s[0].Rate.Mul(decimal.NewFromInt(totalUnits))
	savings := flat.Sub(s.Cost(totalUnits))
	if savings.IsNegative() {
		return decimal.Zero
	}
	return savings
}
