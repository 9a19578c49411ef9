package service

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/biologic-formulary-engine/internal/domain"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestDoseLevelDetector_Detect(t *testing.T) {
	detector := NewDoseLevelDetector(testLogger())

	tests := []struct {
		name      string
		drug      string
		frequency string
		want      domain.DoseReductionLevel
	}{
		{
			name:      "standard dosing",
			drug:      "Humira",
			frequency: "every 2 weeks",
			want:      domain.DoseStandard,
		},
		{
			name:      "25 percent extension",
			drug:      "Humira",
			frequency: "every 3 weeks",
			want:      domain.DoseReduced25,
		},
		{
			name:      "50 percent extension",
			drug:      "Humira",
			frequency: "every 4 weeks",
			want:      domain.DoseReduced50,
		},
		{
			name:      "charting variance inside tolerance band",
			drug:      "Skyrizi",
			frequency: "every 13 weeks",
			want:      domain.DoseStandard,
		},
		{
			name:      "generic name resolves",
			drug:      "adalimumab",
			frequency: "every 4 weeks",
			want:      domain.DoseReduced50,
		},
		{
			name:      "unknown drug assumes standard",
			drug:      "experimentalmab",
			frequency: "every 6 weeks",
			want:      domain.DoseStandard,
		},
		{
			name:      "unparsable frequency assumes standard",
			drug:      "Humira",
			frequency: "as directed",
			want:      domain.DoseStandard,
		},
		{
			name:      "unit mismatch assumes standard",
			drug:      "Humira",
			frequency: "every 14 days",
			want:      domain.DoseStandard,
		},
		{
			name:      "stelara extended to 16 weeks",
			drug:      "Stelara",
			frequency: "every 16 weeks",
			want:      domain.DoseReduced25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detector.Detect(tt.drug, tt.frequency))
		})
	}
}

func TestClassifyExtensionRatio_Boundaries(t *testing.T) {
	tests := []struct {
		ratio float64
		want  domain.DoseReductionLevel
	}{
		{1.0, domain.DoseStandard},
		{1.15, domain.DoseStandard},
		{1.1501, domain.DoseReduced25},
		{1.5, domain.DoseReduced25},
		{1.60, domain.DoseReduced25},
		{1.6001, domain.DoseReduced50},
		{2.0, domain.DoseReduced50},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyExtensionRatio(tt.ratio), "ratio %v", tt.ratio)
	}
}

func TestClassifyExtensionRatio_Monotonic(t *testing.T) {
	// A longer extension never maps to a smaller reduction.
	prev := domain.DoseStandard
	for ratio := 0.5; ratio <= 3.0; ratio += 0.01 {
		level := classifyExtensionRatio(ratio)
		assert.GreaterOrEqual(t, level.Percent(), prev.Percent(), "ratio %v", ratio)
		prev = level
	}
}

func TestStandardInterval(t *testing.T) {
	di, ok := StandardInterval("Cosentyx")
	assert.True(t, ok)
	assert.Equal(t, 4, di.Interval)
	assert.Equal(t, UnitWeeks, di.Unit)

	_, ok = StandardInterval("not-a-drug")
	assert.False(t, ok)
}
