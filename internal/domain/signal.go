// Package domain defines the core data types shared by every layer of the
// signal bot: trade signals detected from chat text, the price plans derived
// from chart images, and the interfaces implemented by the storage, cache, and
// blob backends.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the side of a detected trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// EntryHint records how the signal text asked for the entry to be taken.
type EntryHint string

const (
	// EntryCMP means the text explicitly said "at CMP" (current market price).
	EntryCMP EntryHint = "CMP"
	// EntryMarket is the implicit default when no entry wording is present.
	EntryMarket EntryHint = "MARKET"
)

// TradeSignal is a trading intent detected from a chat message. Direction and
// Ticker are always set once constructed; Prices stays nil until extraction
// completes, and remains nil for signals whose correlation window expired
// without an image.
type TradeSignal struct {
	ID             string
	Direction      Direction
	Ticker         string
	RawText        string
	DetectedAt     time.Time
	EntryHint      EntryHint
	CorrelationKey string // chat scope (channel ID) used to join a later image

	// Chat provenance.
	MessageID string
	Author    string
	ChannelID string

	Prices *PricePlan
	Notes  string
}

// Violation names one failed price-ordering invariant. Violations feed the
// confidence score; they never abort the pipeline.
type Violation string

// PricePlan is the structured result of chart extraction. Each price field is
// either absent (nil) or a finite positive value. An all-empty plan is
// represented as a nil *PricePlan on the signal, never as a zero PricePlan.
type PricePlan struct {
	StopLoss    *float64
	Entry       *float64
	TakeProfit1 *float64
	TakeProfit2 *float64
	TakeProfit3 *float64

	Confidence float64 // [0,1]
	Method     string  // strategy that produced the winning attempt
	Elapsed    time.Duration
	Violations []Violation
}

// HasPrices reports whether at least one of the five price fields is set.
func (p *PricePlan) HasPrices() bool {
	if p == nil {
		return false
	}
	return p.StopLoss != nil || p.Entry != nil ||
		p.TakeProfit1 != nil || p.TakeProfit2 != nil || p.TakeProfit3 != nil
}

// Valid reports whether the plan carries no violations.
func (p *PricePlan) Valid() bool {
	return p != nil && len(p.Violations) == 0
}

// FieldCount returns how many of the five price fields are populated.
func (p *PricePlan) FieldCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, v := range []*float64{p.StopLoss, p.Entry, p.TakeProfit1, p.TakeProfit2, p.TakeProfit3} {
		if v != nil {
			n++
		}
	}
	return n
}

// ViolationStrings returns the violations as plain strings for logging and
// persistence.
func (p *PricePlan) ViolationStrings() []string {
	if p == nil || len(p.Violations) == 0 {
		return nil
	}
	out := make([]string, len(p.Violations))
	for i, v := range p.Violations {
		out[i] = string(v)
	}
	return out
}

// Summary renders a compact one-line view of the plan for logs.
func (p *PricePlan) Summary() string {
	if p == nil {
		return "no plan"
	}
	var parts []string
	add := func(name string, v *float64) {
		if v != nil {
			parts = append(parts, fmt.Sprintf("%s=%.4f", name, *v))
		}
	}
	add("entry", p.Entry)
	add("sl", p.StopLoss)
	add("tp1", p.TakeProfit1)
	add("tp2", p.TakeProfit2)
	add("tp3", p.TakeProfit3)
	if len(parts) == 0 {
		return "no prices"
	}
	return strings.Join(parts, " ")
}
