package service

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/biologic-formulary-engine/internal/domain"
)

// DoseInterval is a standard maintenance dosing interval.
type DoseInterval struct {
	Interval int
	Unit     IntervalUnit
}

// standardMaintenanceDosing maps biologic names (brand and generic, lower
// case) to their labeled maintenance interval. Dose-level detection
// compares the charted interval against this table.
var standardMaintenanceDosing = map[string]DoseInterval{
	// TNF inhibitors
	"humira":            {2, UnitWeeks},
	"adalimumab":        {2, UnitWeeks},
	"amjevita":          {2, UnitWeeks},
	"hyrimoz":           {2, UnitWeeks},
	"enbrel":            {1, UnitWeeks},
	"etanercept":        {1, UnitWeeks},
	"cimzia":            {2, UnitWeeks},
	"certolizumab":      {2, UnitWeeks},
	"simponi":           {4, UnitWeeks},
	"golimumab":         {4, UnitWeeks},
	"remicade":          {8, UnitWeeks},
	"infliximab":        {8, UnitWeeks},
	"inflectra":         {8, UnitWeeks},
	"avsola":            {8, UnitWeeks},
	// IL-12/23
	"stelara":           {12, UnitWeeks},
	"ustekinumab":       {12, UnitWeeks},
	// IL-17
	"cosentyx":          {4, UnitWeeks},
	"secukinumab":       {4, UnitWeeks},
	"taltz":             {4, UnitWeeks},
	"ixekizumab":        {4, UnitWeeks},
	"siliq":             {2, UnitWeeks},
	"brodalumab":        {2, UnitWeeks},
	"bimzelx":           {8, UnitWeeks},
	"bimekizumab":       {8, UnitWeeks},
	// IL-23
	"tremfya":           {8, UnitWeeks},
	"guselkumab":        {8, UnitWeeks},
	"skyrizi":           {12, UnitWeeks},
	"risankizumab":      {12, UnitWeeks},
	"ilumya":            {12, UnitWeeks},
	"tildrakizumab":     {12, UnitWeeks},
	// Oral small molecules charted in days
	"otezla":            {1, UnitDays},
	"apremilast":        {1, UnitDays},
	"sotyktu":           {1, UnitDays},
	"deucravacitinib":   {1, UnitDays},
	"rinvoq":            {1, UnitDays},
	"upadacitinib":      {1, UnitDays},
	"xeljanz":           {1, UnitDays},
	"tofacitinib":       {1, UnitDays},
}

// Extension-ratio thresholds separating the approved reduction tiers.
// The 1.15 band absorbs charting variance ("every 13 weeks" on a 12-week
// drug is still standard dosing).
const (
	standardRatioCeiling  = 1.15
	reduced25RatioCeiling = 1.6
)

// DoseLevelDetector classifies how far a charted dosing frequency has been
// extended beyond the drug's standard maintenance interval.
type DoseLevelDetector struct {
	log *logrus.Logger
}

// NewDoseLevelDetector creates a dose-level detector.
func NewDoseLevelDetector(log *logrus.Logger) *DoseLevelDetector {
	return &DoseLevelDetector{log: log}
}

// Detect returns the patient's dose reduction level. Every inference gap
// resolves to standard dosing: unknown drug, unparsable frequency text,
// and interval-unit mismatch are charting ambiguity, not clinical signal,
// and must never error.
func (d *DoseLevelDetector) Detect(drugName, frequencyText string) domain.DoseReductionLevel {
	standard, ok := standardMaintenanceDosing[strings.ToLower(strings.TrimSpace(drugName))]
	if !ok {
		d.log.WithField("drug", drugName).Debug("Drug not in maintenance dosing table, assuming standard dosing")
		return domain.DoseStandard
	}

	parsed := ParseFrequency(frequencyText)
	switch parsed.Kind {
	case FrequencyUnparsable:
		d.log.WithFields(logrus.Fields{
			"drug":      drugName,
			"frequency": frequencyText,
		}).Debug("Unparsable dosing frequency, assuming standard dosing")
		return domain.DoseStandard
	case FrequencyParsed:
		if parsed.Unit != standard.Unit {
			d.log.WithFields(logrus.Fields{
				"drug":          drugName,
				"charted_unit":  parsed.Unit,
				"standard_unit": standard.Unit,
			}).Debug("Dosing unit mismatch, assuming standard dosing")
			return domain.DoseStandard
		}
	}

	ratio := float64(parsed.Interval) / float64(standard.Interval)
	level := classifyExtensionRatio(ratio)

	d.log.WithFields(logrus.Fields{
		"drug":              drugName,
		"charted_interval":  parsed.Interval,
		"standard_interval": standard.Interval,
		"extension_ratio":   ratio,
		"dose_level":        level.Percent(),
	}).Debug("Detected dose reduction level")

	return level
}

// classifyExtensionRatio maps an interval extension ratio onto the two
// approved reduction tiers.
func classifyExtensionRatio(ratio float64) domain.DoseReductionLevel {
	switch {
	case ratio <= standardRatioCeiling:
		return domain.DoseStandard
	case ratio <= reduced25RatioCeiling:
		return domain.DoseReduced25
	default:
		return domain.DoseReduced50
	}
}

// StandardInterval returns the standard maintenance interval for a drug,
// for rendering return-to-standard recommendations. ok is false for drugs
// outside the table.
func StandardInterval(drugName string) (DoseInterval, bool) {
	di, ok := standardMaintenanceDosing[strings.ToLower(strings.TrimSpace(drugName))]
	return di, ok
}
