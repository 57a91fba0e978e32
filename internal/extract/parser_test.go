package extract

import (
	"errors"
	"testing"

	"chartsignal/internal/domain"
)

func TestParseResponsePlainJSON(t *testing.T) {
	raw := `{"stop_loss": 95.5, "take_profit_1": 105, "take_profit_2": 110.25, "take_profit_3": null, "entry_price": 100}`
	p, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if p.StopLoss == nil || *p.StopLoss != 95.5 {
		t.Errorf("StopLoss = %v, want 95.5", p.StopLoss)
	}
	if p.TakeProfit2 == nil || *p.TakeProfit2 != 110.25 {
		t.Errorf("TakeProfit2 = %v, want 110.25", p.TakeProfit2)
	}
	if p.TakeProfit3 != nil {
		t.Errorf("TakeProfit3 = %v, want absent for null", *p.TakeProfit3)
	}
	if p.Entry == nil || *p.Entry != 100 {
		t.Errorf("Entry = %v, want 100", p.Entry)
	}
}

func TestParseResponseFencedWithProse(t *testing.T) {
	raw := "Here are the levels I can read from the chart:\n```json\n" +
		`{"stop_loss": "105,626.40", "take_profit_1": "$112,890.20", "entry_price": null}` +
		"\n```\nLet me know if you need anything else."
	p, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if p.StopLoss == nil || *p.StopLoss != 105626.40 {
		t.Errorf("StopLoss = %v, want 105626.40", p.StopLoss)
	}
	if p.TakeProfit1 == nil || *p.TakeProfit1 != 112890.20 {
		t.Errorf("TakeProfit1 = %v, want 112890.20", p.TakeProfit1)
	}
	if p.Entry != nil {
		t.Errorf("Entry = %v, want absent", *p.Entry)
	}
}

func TestParseResponseCurrentPriceFallback(t *testing.T) {
	raw := `{"stop_loss": 95, "entry_price": null, "current_price": 100.5}`
	p, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if p.Entry == nil || *p.Entry != 100.5 {
		t.Errorf("Entry = %v, want current_price fallback 100.5", p.Entry)
	}

	// An explicit entry wins over current_price.
	raw = `{"entry_price": 99, "current_price": 100.5}`
	p, err = ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if p.Entry == nil || *p.Entry != 99 {
		t.Errorf("Entry = %v, want explicit 99", p.Entry)
	}
}

func TestParseResponseUnreadableFieldIsAbsent(t *testing.T) {
	raw := `{"stop_loss": "not visible", "take_profit_1": 105, "take_profit_2": "N/A"}`
	p, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if p.StopLoss != nil {
		t.Errorf("StopLoss = %v, want absent for unreadable value", *p.StopLoss)
	}
	if p.TakeProfit2 != nil {
		t.Errorf("TakeProfit2 = %v, want absent for N/A", *p.TakeProfit2)
	}
	if p.TakeProfit1 == nil || *p.TakeProfit1 != 105 {
		t.Errorf("TakeProfit1 = %v, want 105", p.TakeProfit1)
	}
}

func TestParseResponseNoJSON(t *testing.T) {
	for _, raw := range []string{
		"I cannot see any price levels on this chart.",
		"",
		"```\nsorry, the image is too blurry\n```",
	} {
		if _, err := ParseResponse(raw); !errors.Is(err, domain.ErrMalformedOracle) {
			t.Errorf("ParseResponse(%q) err = %v, want ErrMalformedOracle", raw, err)
		}
	}
}
