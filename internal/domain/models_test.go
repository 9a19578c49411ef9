package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() *AssessmentInput {
	return &AssessmentInput{
		PatientID:    "pt-001",
		Diagnosis:    PSORIASIS,
		DLQIScore:    3,
		MonthsStable: 8,
	}
}

func TestAssessmentInputValidate(t *testing.T) {
	require.NoError(t, validInput().Validate())

	tests := []struct {
		name      string
		mutate    func(*AssessmentInput)
		wantField string
	}{
		{"missing patient ID", func(a *AssessmentInput) { a.PatientID = "" }, "patient_id"},
		{"bad diagnosis", func(a *AssessmentInput) { a.Diagnosis = "GOUT" }, "diagnosis"},
		{"DLQI below range", func(a *AssessmentInput) { a.DLQIScore = -1 }, "dlqi_score"},
		{"DLQI above range", func(a *AssessmentInput) { a.DLQIScore = 31 }, "dlqi_score"},
		{"negative months", func(a *AssessmentInput) { a.MonthsStable = -2 }, "months_stable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(input)

			err := input.Validate()
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}

	// Range boundaries are inclusive.
	edge := validInput()
	edge.DLQIScore = 0
	assert.NoError(t, edge.Validate())
	edge.DLQIScore = 30
	assert.NoError(t, edge.Validate())
}

func TestFormularyDrugIndicatedFor(t *testing.T) {
	drug := FormularyDrug{
		DrugName:       "Cosentyx",
		FDAIndications: []Diagnosis{PSORIASIS, PSORIATIC_ARTHRITIS},
	}
	assert.True(t, drug.IndicatedFor(PSORIASIS))
	assert.False(t, drug.IndicatedFor(CROHNS_DISEASE))
	assert.True(t, drug.IndicationKnown())

	// Legacy rows without an indication list match everything.
	legacy := FormularyDrug{DrugName: "Humira"}
	assert.True(t, legacy.IndicatedFor(CROHNS_DISEASE))
	assert.False(t, legacy.IndicationKnown())
}

func TestFormularyDrugMatches(t *testing.T) {
	drug := FormularyDrug{DrugName: "Humira", GenericName: "adalimumab"}

	assert.True(t, drug.Matches("Humira"))
	assert.True(t, drug.Matches("humira"))
	assert.True(t, drug.Matches("ADALIMUMAB"))
	assert.True(t, drug.Matches("  Humira  "))
	assert.False(t, drug.Matches("Enbrel"))
	assert.False(t, drug.Matches(""))
}

func TestFormularyDrugIsBiosimilarOf(t *testing.T) {
	biosimilar := FormularyDrug{DrugName: "Amjevita", BiosimilarOf: "Humira"}

	assert.True(t, biosimilar.IsBiosimilarOf("Humira"))
	assert.True(t, biosimilar.IsBiosimilarOf("humira"))
	assert.False(t, biosimilar.IsBiosimilarOf("Enbrel"))

	originator := FormularyDrug{DrugName: "Humira"}
	assert.False(t, originator.IsBiosimilarOf("Humira"))
	assert.False(t, originator.IsBiosimilarOf(""))
}

func TestContraindicatedDrugSeverity(t *testing.T) {
	entry := ContraindicatedDrug{
		Drug: FormularyDrug{DrugName: "Humira"},
		Reasons: []ContraindicationReason{
			{Type: LYMPHOMA, Severity: RELATIVE, Reason: "TNF inhibitors and malignancy history"},
		},
	}
	assert.Equal(t, RELATIVE, entry.MaxSeverity())
	assert.False(t, entry.HasAbsolute())

	entry.Reasons = append(entry.Reasons, ContraindicationReason{
		Type: HEART_FAILURE, Severity: ABSOLUTE, Reason: "TNF inhibitors in heart failure",
	})
	assert.Equal(t, ABSOLUTE, entry.MaxSeverity())
	assert.True(t, entry.HasAbsolute())
	assert.Contains(t, entry.ReasonSummary(), "heart failure")
	assert.Contains(t, entry.ReasonSummary(), "; ")
}

func TestIsInputError(t *testing.T) {
	assert.True(t, IsInputError(NewAssessmentError(ErrInvalidInput, "bad", "")))
	assert.True(t, IsInputError(NewAssessmentError(ErrMissingBiologic, "none", "")))
	assert.True(t, IsInputError(NewAssessmentError(ErrEmptyFormulary, "empty", "")))
	assert.True(t, IsInputError(NewAssessmentError(ErrNoIndicatedDrugs, "none", "")))
	assert.True(t, IsInputError(&ValidationError{Field: "dlqi_score"}))

	assert.False(t, IsInputError(NewAssessmentError(ErrDatabaseError, "down", "")))
	assert.False(t, IsInputError(errors.New("plain error")))
	assert.False(t, IsInputError(ErrNotFound))
}
