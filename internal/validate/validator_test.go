package validate

import (
	"strings"
	"testing"

	"chartsignal/internal/domain"
)

func f(v float64) *float64 { return &v }

func goodLongSet() PriceSet {
	return PriceSet{
		StopLoss:    f(95.0),
		Entry:       f(100.0),
		TakeProfit1: f(105.0),
		TakeProfit2: f(110.0),
		TakeProfit3: f(115.0),
	}
}

func goodShortSet() PriceSet {
	return PriceSet{
		StopLoss:    f(115.0),
		Entry:       f(110.0),
		TakeProfit1: f(105.0),
		TakeProfit2: f(100.0),
		TakeProfit3: f(95.0),
	}
}

func TestValidateCoherentSets(t *testing.T) {
	if errs := Validate(goodLongSet(), domain.DirectionLong); len(errs) != 0 {
		t.Errorf("LONG set: unexpected violations: %v", errs)
	}
	if errs := Validate(goodShortSet(), domain.DirectionShort); len(errs) != 0 {
		t.Errorf("SHORT set: unexpected violations: %v", errs)
	}
}

func TestValidateEmptySet(t *testing.T) {
	errs := Validate(PriceSet{}, domain.DirectionLong)
	if len(errs) != 1 {
		t.Fatalf("got %d violations, want exactly 1", len(errs))
	}
	if !strings.Contains(string(errs[0]), "no price levels") {
		t.Errorf("violation = %q, want a no-data marker", errs[0])
	}
}

func TestValidateNegatedInequalities(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PriceSet)
		wantA  string // both level names must appear in at least one violation
		wantB  string
	}{
		{"tp1 above tp2", func(p *PriceSet) { p.TakeProfit1 = f(111.0) }, "TP1", "TP2"},
		{"tp2 above tp3", func(p *PriceSet) { p.TakeProfit2 = f(116.0) }, "TP2", "TP3"},
		{"sl above tp1", func(p *PriceSet) { p.StopLoss = f(106.0) }, "SL", "TP1"},
		{"entry below sl", func(p *PriceSet) { p.Entry = f(94.0) }, "Entry", "SL"},
		{"entry above tp1", func(p *PriceSet) { p.Entry = f(106.0) }, "Entry", "TP1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := goodLongSet()
			tc.mutate(&p)
			errs := Validate(p, domain.DirectionLong)
			if len(errs) == 0 {
				t.Fatal("want at least one violation")
			}
			found := false
			for _, e := range errs {
				s := string(e)
				if strings.Contains(s, tc.wantA) && strings.Contains(s, tc.wantB) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("no violation names both %s and %s: %v", tc.wantA, tc.wantB, errs)
			}
		})
	}
}

func TestValidateShortStopLossBelowTPs(t *testing.T) {
	p := goodShortSet()
	p.StopLoss = f(90.0) // below every TP, wrong side for a SHORT
	errs := Validate(p, domain.DirectionShort)
	if len(errs) == 0 {
		t.Fatal("want violations for SL below TPs on a SHORT")
	}
	for _, e := range errs {
		if !strings.Contains(string(e), "SHORT trade") {
			t.Errorf("violation %q does not name the trade direction", e)
		}
	}
}

func TestValidateRangeSanity(t *testing.T) {
	tooWide := PriceSet{StopLoss: f(100.0), TakeProfit1: f(200.0)}
	errs := Validate(tooWide, domain.DirectionLong)
	if len(errs) != 1 || !strings.Contains(string(errs[0]), "too large") {
		t.Errorf("wide range: violations = %v, want a single too-large marker", errs)
	}

	tooNarrow := PriceSet{StopLoss: f(100.0), TakeProfit1: f(100.01)}
	errs = Validate(tooNarrow, domain.DirectionLong)
	if len(errs) != 1 || !strings.Contains(string(errs[0]), "too small") {
		t.Errorf("narrow range: violations = %v, want a single too-small marker", errs)
	}

	// A non-positive minimum skips the range check entirely.
	nonPositive := PriceSet{StopLoss: f(-1.0), TakeProfit1: f(50.0)}
	for _, e := range Validate(nonPositive, domain.DirectionLong) {
		if strings.Contains(string(e), "range") {
			t.Errorf("range check should be skipped for non-positive min, got %q", e)
		}
	}
}

func TestValidateSparseSetFromOracle(t *testing.T) {
	// Mirrors a real oracle response: TP1 missing, remaining levels coherent
	// for a LONG.
	p := PriceSet{
		StopLoss:    f(105626.40),
		TakeProfit2: f(112890.20),
		TakeProfit3: f(123158.10),
	}
	if errs := Validate(p, domain.DirectionLong); len(errs) != 0 {
		t.Errorf("unexpected violations: %v", errs)
	}
}

func TestValidateIdempotent(t *testing.T) {
	p := goodLongSet()
	p.TakeProfit1 = f(120.0) // introduce a deliberate ordering failure

	first := Validate(p, domain.DirectionLong)
	second := Validate(p, domain.DirectionLong)
	if len(first) != len(second) {
		t.Fatalf("violation counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("violation %d differs: %q vs %q", i, first[i], second[i])
		}
	}
}
