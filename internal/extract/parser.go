package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"chartsignal/internal/domain"
	"chartsignal/internal/validate"
)

// oracleExtraction mirrors the JSON shape the strategies ask the oracle for.
// Fields are decoded as any because the oracle freely mixes numbers, quoted
// strings with currency symbols, and nulls.
type oracleExtraction struct {
	StopLoss     any `json:"stop_loss"`
	TakeProfit1  any `json:"take_profit_1"`
	TakeProfit2  any `json:"take_profit_2"`
	TakeProfit3  any `json:"take_profit_3"`
	EntryPrice   any `json:"entry_price"`
	CurrentPrice any `json:"current_price"`
}

// ParseResponse extracts a partial price set from an oracle response. It
// tolerates markdown code fences, surrounding prose, currency symbols, and
// thousands separators; a field that cannot be read as a price is treated as
// absent rather than failing the whole response. It returns
// domain.ErrMalformedOracle when no JSON object can be located at all.
func ParseResponse(raw string) (validate.PriceSet, error) {
	body, ok := extractJSONObject(raw)
	if !ok {
		return validate.PriceSet{}, fmt.Errorf("extract: no JSON object in oracle response: %w", domain.ErrMalformedOracle)
	}

	var ext oracleExtraction
	if err := json.Unmarshal([]byte(body), &ext); err != nil {
		return validate.PriceSet{}, fmt.Errorf("extract: decode oracle response: %w", domain.ErrMalformedOracle)
	}

	p := validate.PriceSet{
		StopLoss:    parsePrice(ext.StopLoss),
		Entry:       parsePrice(ext.EntryPrice),
		TakeProfit1: parsePrice(ext.TakeProfit1),
		TakeProfit2: parsePrice(ext.TakeProfit2),
		TakeProfit3: parsePrice(ext.TakeProfit3),
	}
	// Charts often mark the current price instead of an explicit entry.
	if p.Entry == nil {
		p.Entry = parsePrice(ext.CurrentPrice)
	}
	return p, nil
}

// extractJSONObject locates the JSON object within an oracle response,
// stripping markdown fences and any prose around the braces.
func extractJSONObject(raw string) (string, bool) {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.Index(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// parsePrice converts a decoded JSON value to a price. Strings may carry a
// currency symbol and thousands separators. Unreadable values map to nil.
func parsePrice(v any) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		return &t
	case string:
		cleaned := strings.TrimSpace(t)
		cleaned = strings.ReplaceAll(cleaned, "$", "")
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		if cleaned == "" || strings.EqualFold(cleaned, "null") || strings.EqualFold(cleaned, "n/a") {
			return nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
