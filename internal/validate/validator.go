// Package validate encodes the price-ordering invariants a coherent trade
// setup must satisfy. Validation is pure: it collects every violated rule into
// an ordered list and never short-circuits past the first failure, so callers
// can compare attempts by how badly they violate the invariants.
package validate

import (
	"fmt"

	"chartsignal/internal/domain"
)

// PriceSet is a partial set of extracted price levels. Nil fields are absent.
type PriceSet struct {
	StopLoss    *float64
	Entry       *float64
	TakeProfit1 *float64
	TakeProfit2 *float64
	TakeProfit3 *float64
}

// HasAny reports whether at least one field is populated.
func (p PriceSet) HasAny() bool {
	return p.StopLoss != nil || p.Entry != nil ||
		p.TakeProfit1 != nil || p.TakeProfit2 != nil || p.TakeProfit3 != nil
}

// FieldCount returns how many of the five fields are populated.
func (p PriceSet) FieldCount() int {
	n := 0
	for _, v := range p.all() {
		if v != nil {
			n++
		}
	}
	return n
}

func (p PriceSet) all() []*float64 {
	return []*float64{p.StopLoss, p.Entry, p.TakeProfit1, p.TakeProfit2, p.TakeProfit3}
}

// takeProfits returns the populated TP levels in index order with their names.
func (p PriceSet) takeProfits() (names []string, prices []float64) {
	for i, tp := range []*float64{p.TakeProfit1, p.TakeProfit2, p.TakeProfit3} {
		if tp != nil {
			names = append(names, fmt.Sprintf("TP%d", i+1))
			prices = append(prices, *tp)
		}
	}
	return names, prices
}

// Range-sanity thresholds: a single trade setup rarely spans more than half
// the base price, and levels closer than a tenth of a percent are more likely
// a misread than distinct targets.
const (
	maxRangePercent = 50.0
	minRangePercent = 0.1
)

// Validate checks the price set against the ordering invariants for the given
// trade direction and returns every violation found, in rule order. An empty
// result means the set is coherent. Validate is idempotent and side-effect
// free.
func Validate(p PriceSet, dir domain.Direction) []domain.Violation {
	var errs []domain.Violation

	if !p.HasAny() {
		return []domain.Violation{"no price levels extracted"}
	}

	errs = append(errs, tpOrdering(p, dir)...)
	errs = append(errs, stopLossSide(p, dir)...)
	errs = append(errs, entryBracketing(p, dir)...)
	errs = append(errs, rangeSanity(p)...)

	return errs
}

// tpOrdering requires populated take profits to be strictly monotone in index
// order: increasing for LONG, decreasing for SHORT.
func tpOrdering(p PriceSet, dir domain.Direction) []domain.Violation {
	names, prices := p.takeProfits()
	if len(prices) < 2 {
		return nil
	}

	var errs []domain.Violation
	for i := 0; i < len(prices)-1; i++ {
		cur, next := prices[i], prices[i+1]
		switch dir {
		case domain.DirectionLong:
			if cur >= next {
				errs = append(errs, violationf("LONG trade: %s(%v) should be < %s(%v)",
					names[i], cur, names[i+1], next))
			}
		case domain.DirectionShort:
			if cur <= next {
				errs = append(errs, violationf("SHORT trade: %s(%v) should be > %s(%v)",
					names[i], cur, names[i+1], next))
			}
		}
	}
	return errs
}

// stopLossSide requires the stop loss to sit below every TP for LONG and above
// every TP for SHORT.
func stopLossSide(p PriceSet, dir domain.Direction) []domain.Violation {
	if p.StopLoss == nil {
		return nil
	}
	names, prices := p.takeProfits()

	var errs []domain.Violation
	for i, tp := range prices {
		switch dir {
		case domain.DirectionLong:
			if *p.StopLoss >= tp {
				errs = append(errs, violationf("LONG trade: SL(%v) should be < %s(%v)",
					*p.StopLoss, names[i], tp))
			}
		case domain.DirectionShort:
			if *p.StopLoss <= tp {
				errs = append(errs, violationf("SHORT trade: SL(%v) should be > %s(%v)",
					*p.StopLoss, names[i], tp))
			}
		}
	}
	return errs
}

// entryBracketing requires the entry to lie strictly between the stop loss and
// the first take profit. Only evaluated when all three are present.
func entryBracketing(p PriceSet, dir domain.Direction) []domain.Violation {
	if p.Entry == nil || p.StopLoss == nil || p.TakeProfit1 == nil {
		return nil
	}
	entry, sl, tp1 := *p.Entry, *p.StopLoss, *p.TakeProfit1

	var errs []domain.Violation
	switch dir {
	case domain.DirectionLong:
		if entry <= sl {
			errs = append(errs, violationf("LONG trade: Entry(%v) should be > SL(%v)", entry, sl))
		}
		if entry >= tp1 {
			errs = append(errs, violationf("LONG trade: Entry(%v) should be < TP1(%v)", entry, tp1))
		}
	case domain.DirectionShort:
		if entry >= sl {
			errs = append(errs, violationf("SHORT trade: Entry(%v) should be < SL(%v)", entry, sl))
		}
		if entry <= tp1 {
			errs = append(errs, violationf("SHORT trade: Entry(%v) should be > TP1(%v)", entry, tp1))
		}
	}
	return errs
}

// rangeSanity flags price sets whose spread is implausibly wide or narrow
// relative to the smallest level. Skipped when fewer than two fields are
// populated or when the minimum is not positive.
func rangeSanity(p PriceSet) []domain.Violation {
	var prices []float64
	for _, v := range p.all() {
		if v != nil {
			prices = append(prices, *v)
		}
	}
	if len(prices) < 2 {
		return nil
	}

	min, max := prices[0], prices[0]
	for _, v := range prices[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min <= 0 {
		return nil
	}

	rangePercent := (max - min) / min * 100
	switch {
	case rangePercent > maxRangePercent:
		return []domain.Violation{violationf("price range seems too large: %.1f%% of base price", rangePercent)}
	case rangePercent < minRangePercent:
		return []domain.Violation{violationf("price range seems too small: %.3f%% of base price", rangePercent)}
	}
	return nil
}

func violationf(format string, args ...any) domain.Violation {
	return domain.Violation(fmt.Sprintf(format, args...))
}
