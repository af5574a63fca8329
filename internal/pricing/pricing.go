/**
 * @description
 * Pure pricing computation for offers. No I/O, no state: a set of line items
 * and a platform fee percentage go in, three derived amounts come out. All
 * arithmetic is integer arithmetic over minor currency units.
 *
 * Rounding policy: each line's rush-adjusted price is rounded half-up to the
 * nearest minor unit before summation. The platform fee is rounded half-up
 * once, applied to the already-rounded subtotal. Inputs are validated, never
 * clamped.
 */

package pricing

import (
	"fmt"

	"github.com/collabry/offer-service/internal/domain"
)

const (
	// MaxRushFeePct is the upper bound for a per-line rush surcharge.
	MaxRushFeePct = 200
	// MaxPlatformFeePct is the upper bound for the platform's cut.
	MaxPlatformFeePct = 100
)

// Totals are the derived amounts for an offer. The invariant
// TotalCents == SubtotalCents + PlatformFeeCents always holds.
type Totals struct {
	SubtotalCents    int64
	PlatformFeeCents int64
	TotalCents       int64
}

// ComputeTotals derives subtotal, platform fee and total for the given line
// items. It rejects any quantity < 1, negative base price, rush fee outside
// [0, 200], platform fee outside [0, 100], or unknown deliverable type.
func ComputeTotals(items []domain.LineItem, platformFeePct int) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, domain.Validation("items", "at least one line item is required")
	}
	if platformFeePct < 0 || platformFeePct > MaxPlatformFeePct {
		return Totals{}, domain.Validation("platform_fee_pct",
			fmt.Sprintf("must be between 0 and %d, got %d", MaxPlatformFeePct, platformFeePct))
	}

	var subtotal int64
	for i, item := range items {
		if err := validateLineItem(i, item); err != nil {
			return Totals{}, err
		}
		subtotal += lineTotalCents(item)
	}

	fee := roundHalfUpPct(subtotal, int64(platformFeePct))

	return Totals{
		SubtotalCents:    subtotal,
		PlatformFeeCents: fee,
		TotalCents:       subtotal + fee,
	}, nil
}

// LineTotalCents returns the rush-adjusted, rounded price of a single valid
// line item.
func LineTotalCents(item domain.LineItem) (int64, error) {
	if err := validateLineItem(0, item); err != nil {
		return 0, err
	}
	return lineTotalCents(item), nil
}

func validateLineItem(idx int, item domain.LineItem) error {
	field := func(name string) string { return fmt.Sprintf("items[%d].%s", idx, name) }
	if !domain.ValidDeliverableType(item.DeliverableType) {
		return domain.Validation(field("deliverable_type"),
			fmt.Sprintf("unknown deliverable type %q", item.DeliverableType))
	}
	if item.Quantity < 1 {
		return domain.Validation(field("quantity"),
			fmt.Sprintf("must be at least 1, got %d", item.Quantity))
	}
	if item.BasePriceCents < 0 {
		return domain.Validation(field("base_price_cents"),
			fmt.Sprintf("must not be negative, got %d", item.BasePriceCents))
	}
	if item.RushFeePct < 0 || item.RushFeePct > MaxRushFeePct {
		return domain.Validation(field("rush_fee_pct"),
			fmt.Sprintf("must be between 0 and %d, got %d", MaxRushFeePct, item.RushFeePct))
	}
	return nil
}

func lineTotalCents(item domain.LineItem) int64 {
	raw := item.BasePriceCents * int64(item.Quantity) * (100 + int64(item.RushFeePct))
	return divRoundHalfUp(raw, 100)
}

// roundHalfUpPct computes amount * pct% rounded half-up. Both operands are
// non-negative.
func roundHalfUpPct(amount, pct int64) int64 {
	return divRoundHalfUp(amount*pct, 100)
}

func divRoundHalfUp(numerator, denominator int64) int64 {
	q := numerator / denominator
	r := numerator % denominator
	if r*2 >= denominator {
		q++
	}
	return q
}
