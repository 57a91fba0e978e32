// Package classify turns free-form chat text into typed trade signals. The
// classifier is a pure function over an ordered table of direction-tagged
// regular expressions; it performs no I/O and is deterministic for a given
// input, so it can be unit tested without any fakes.
package classify

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"chartsignal/internal/domain"
)

// Precedence controls what happens when both a LONG and a SHORT rule match the
// same text.
type Precedence int

const (
	// PreferLong resolves ambiguous text in favor of the LONG rule set. This
	// mirrors the behavior signal authors expect from the channels we watch,
	// where phrasing like "short squeeze, going long" trips both sets.
	PreferLong Precedence = iota
	// RejectAmbiguous treats text matched by both rule sets as no signal.
	RejectAmbiguous
)

// ticker is the capture used by every rule: 2-10 uppercase letters, optionally
// prefixed with a stray dollar marker.
const ticker = `(\$?[A-Za-z]{2,10})`

// Rule order matters: within a direction the first match wins, so the more
// specific phrasings come before the bare "<ticker> long" catch-alls.
var longPatterns = []string{
	`going\s+longs?\s+(?:on\s+)?` + ticker,
	`taking\s+(?:a|an)\s+` + ticker + `\s+long`,
	`(?:^|\s)long(?:ing)?\s+` + ticker,
	ticker + `\s+long`,
	`longed\s+(?:on\s+)?` + ticker,
	`went\s+longs?\s+(?:on\s+)?` + ticker,
	`(?:just\s+)?bought\s+(?:some\s+)?(?:spot\s+)?` + ticker,
	`buying\s+` + ticker,
	`entered\s+(?:a\s+)?long\s+(?:on\s+)?` + ticker,
	`entered\s+` + ticker + `\s+long`,
	`market\s+long(?:ing|ed)?\s+(?:on\s+)?` + ticker,
	`long(?:ed|ing)?\s+` + ticker + `\s+here`,
	ticker + `\s+long\s+here`,
}

var shortPatterns = []string{
	`going\s+shorts?\s+(?:on\s+)?` + ticker,
	`taking\s+(?:a|an)\s+` + ticker + `\s+short`,
	`(?:^|\s)short(?:ing)?\s+` + ticker,
	ticker + `\s+short`,
	`shorted\s+(?:on\s+)?` + ticker,
	`went\s+shorts?\s+(?:on\s+)?` + ticker,
	`(?:just\s+)?sold\s+(?:some\s+)?` + ticker,
	`selling\s+` + ticker,
	`entered\s+(?:a\s+)?short\s+(?:on\s+)?` + ticker,
	`entered\s+` + ticker + `\s+short`,
	`market\s+short(?:ing|ed)?\s+(?:on\s+)?` + ticker,
	`short(?:ed|ing)?\s+` + ticker + `\s+here`,
	ticker + `\s+short\s+here`,
}

// cmpRe detects an explicit "at CMP" entry request.
var cmpRe = regexp.MustCompile(`(?i)\bat\s+cmp\b`)

// Classifier matches chat text against the trade-intent rule tables.
type Classifier struct {
	long       []*regexp.Regexp
	short      []*regexp.Regexp
	precedence Precedence
	now        func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithPrecedence sets the ambiguity policy.
func WithPrecedence(p Precedence) Option {
	return func(c *Classifier) { c.precedence = p }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// New compiles the rule tables and returns a ready Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		long:       compile(longPatterns),
		short:      compile(shortPatterns),
		precedence: PreferLong,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func compile(patterns []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(`(?i)` + p)
	}
	return res
}

// Classify matches text against both rule sets and returns the detected
// signal, or ok=false when the text carries no trade intent (or is ambiguous
// under RejectAmbiguous). Absence of a match is a normal outcome, not an
// error.
func (c *Classifier) Classify(text string) (*domain.TradeSignal, bool) {
	longTicker, longOK := firstMatch(c.long, text)
	shortTicker, shortOK := firstMatch(c.short, text)

	if longOK && shortOK && c.precedence == RejectAmbiguous {
		return nil, false
	}

	var dir domain.Direction
	var sym string
	switch {
	case longOK:
		dir, sym = domain.DirectionLong, longTicker
	case shortOK:
		dir, sym = domain.DirectionShort, shortTicker
	default:
		return nil, false
	}

	hint := domain.EntryMarket
	if cmpRe.MatchString(text) {
		hint = domain.EntryCMP
	}

	return &domain.TradeSignal{
		ID:         uuid.NewString(),
		Direction:  dir,
		Ticker:     cleanTicker(sym),
		RawText:    text,
		DetectedAt: c.now(),
		EntryHint:  hint,
	}, true
}

// firstMatch returns the ticker capture of the first rule that matches.
func firstMatch(rules []*regexp.Regexp, text string) (string, bool) {
	for _, re := range rules {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// cleanTicker strips the currency marker and normalizes to uppercase.
func cleanTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(s, "$")))
}
