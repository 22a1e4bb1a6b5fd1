package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rttline/internal/domain"
)

func TestClassifyTextRules(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		code   domain.Code
		action domain.ClockAction
		rule   string
	}{
		{"referral", "Dear colleague, I am writing to refer this gentleman with knee pain.", 10, domain.ActionStart, "referral"},
		{"treatment", "His knee replacement surgery was performed on 12/03/2025 without complication.", 30, domain.ActionStop, "treatment_completed"},
		{"discharge", "I have discharged her back to the care of her GP.", 34, domain.ActionStop, "discharge"},
		{"negated intervention", "I don't think further surgery is needed at this stage.", 34, domain.ActionStop, "discharge"},
		{"declined", "He has declined surgery after a long discussion.", 35, domain.ActionStop, "declined"},
		{"dna", "The patient was DNA for today's appointment.", 33, domain.ActionContinue, "did_not_attend"},
		{"failed to attend", "Unfortunately she failed to attend clinic.", 33, domain.ActionContinue, "did_not_attend"},
		{"monitoring clinician", "We agreed a period of active monitoring.", 32, domain.ActionPause, "active_monitoring"},
		{"monitoring patient", "The patient would like to wait and we have agreed active monitoring.", 31, domain.ActionPause, "active_monitoring"},
		{"transfer", "Care has been transferred to the regional spinal unit.", 21, domain.ActionTransfer, "transfer"},
		{"listing", "I have added him to the waiting list for a knee arthroscopy.", 20, domain.ActionContinue, "decision_to_treat"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyText(tc.text)
			assert.Equal(t, tc.code, got.Code)
			assert.Equal(t, tc.action, got.Action)
			assert.Equal(t, tc.rule, got.Rule)
			assert.False(t, got.Defaulted)
		})
	}
}

func TestClassifyTextDefault(t *testing.T) {
	got := ClassifyText("Examination findings are recorded above.")
	assert.Equal(t, domain.CodeSubsequentActivity, got.Code)
	assert.Equal(t, domain.ActionContinue, got.Action)
	assert.True(t, got.Defaulted)
	assert.Equal(t, DefaultRule, got.Rule)
}

func TestDischargeBeatsDiagnosticResults(t *testing.T) {
	text := "The MRI results were reviewed today and the scan was normal. " +
		"I do not believe that any intervention is needed."
	got := ClassifyText(text)
	assert.Equal(t, domain.CodeDecisionNotToTreat, got.Code)
	assert.Equal(t, domain.ActionStop, got.Action)
}

func TestPrecedence(t *testing.T) {
	// treatment completion is checked before discharge
	got := ClassifyText("Surgery was performed last month. She is discharged from clinic.")
	assert.Equal(t, domain.CodeFirstTreatment, got.Code)

	// discharge is checked before DNA
	got = ClassifyText("He did not attend again and has been discharged.")
	assert.Equal(t, domain.CodeDecisionNotToTreat, got.Code)
}

func TestClassifyIsStable(t *testing.T) {
	text := "We agreed a period of watchful waiting."
	assert.Equal(t, ClassifyText(text), ClassifyText(text))
}

func TestClassifyRecord(t *testing.T) {
	rec := domain.PathwayRecord{Events: []domain.CodeEvent{{Code: 10}, {Code: 32}, {Code: 11}}}
	got := ClassifyRecord(rec)
	assert.Equal(t, domain.CodeRestartAfterMonitoring, got.Code)
	assert.Equal(t, domain.ActionRestart, got.Action)

	rec.RecordedCode = domain.CodeFirstTreatment
	assert.Equal(t, domain.ActionStop, ClassifyRecord(rec).Action)

	empty := ClassifyRecord(domain.PathwayRecord{})
	assert.True(t, empty.Defaulted)
	assert.Equal(t, domain.CodeSubsequentActivity, empty.Code)

	unknown := ClassifyRecord(domain.PathwayRecord{RecordedCode: 77})
	assert.Equal(t, "unknown_code", unknown.Rule)
	assert.Equal(t, domain.ActionContinue, unknown.Action)
}
