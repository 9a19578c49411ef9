// Package service implements the recommendation decision engine: dosing
// inference, treatment-state classification, candidate filtering, cost
// estimation, and the tier cascade that produces ranked recommendations.
package service

import (
	"regexp"
	"strconv"
	"strings"
)

// IntervalUnit is the time unit of a dosing interval.
type IntervalUnit string

const (
	UnitWeeks IntervalUnit = "weeks"
	UnitDays  IntervalUnit = "days"
)

// FrequencyKind tags a parse result so callers consume it exhaustively
// instead of testing sentinel values.
type FrequencyKind int

const (
	// FrequencyParsed means the text matched "every N weeks|days".
	FrequencyParsed FrequencyKind = iota
	// FrequencyUnparsable means the text carried no recognizable interval.
	FrequencyUnparsable
)

// ParsedFrequency is the typed result of parsing a charted dosing
// frequency string.
type ParsedFrequency struct {
	Kind     FrequencyKind
	Interval int
	Unit     IntervalUnit
}

// Charted frequencies are free text; accept the abbreviations that show up
// in real records ("q2w", "every 8 wks", "every 14 days").
var (
	everyPattern = regexp.MustCompile(`(?i)every\s+(\d+)\s*(weeks?|wks?|w|days?|d)\b`)
	qPattern     = regexp.MustCompile(`(?i)\bq\s*(\d+)\s*(weeks?|wks?|w|days?|d)\b`)
)

// ParseFrequency parses a charted dosing-frequency string. It never
// errors: text that matches no pattern comes back tagged Unparsable and
// the dose-level detector resolves it to standard dosing.
func ParseFrequency(text string) ParsedFrequency {
	text = strings.TrimSpace(text)
	if text == "" {
		return ParsedFrequency{Kind: FrequencyUnparsable}
	}

	m := everyPattern.FindStringSubmatch(text)
	if m == nil {
		m = qPattern.FindStringSubmatch(text)
	}
	if m == nil {
		return ParsedFrequency{Kind: FrequencyUnparsable}
	}

	interval, err := strconv.Atoi(m[1])
	if err != nil || interval <= 0 {
		return ParsedFrequency{Kind: FrequencyUnparsable}
	}

	return ParsedFrequency{
		Kind:     FrequencyParsed,
		Interval: interval,
		Unit:     normalizeUnit(m[2]),
	}
}

func normalizeUnit(raw string) IntervalUnit {
	switch strings.ToLower(strings.TrimSpace(raw))[0] {
	case 'd':
		return UnitDays
	default:
		return UnitWeeks
	}
}
