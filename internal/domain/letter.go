package domain

import (
	"rttline/internal/dates"
)

// TemporalClass says whether a mention describes something already done.
type TemporalClass string

const (
	Past    TemporalClass = "past"
	Future  TemporalClass = "future"
	Unclear TemporalClass = "unclear"
)

// ActionCategory groups action keywords for temporal classification.
type ActionCategory string

const (
	CategoryAppointment ActionCategory = "appointment"
	CategoryDiagnostic  ActionCategory = "diagnostic"
	CategoryWaitingList ActionCategory = "waiting_list"
	CategoryGPLetter    ActionCategory = "gp_correspondence"
	CategoryTreatment   ActionCategory = "treatment"
	CategoryReferral    ActionCategory = "referral"
)

// TestType is the closed set of diagnostic tests the extractor recognises.
type TestType string

const (
	TestMRI              TestType = "MRI"
	TestCT               TestType = "CT"
	TestXRay             TestType = "X-RAY"
	TestUltrasound       TestType = "ULTRASOUND"
	TestBlood            TestType = "BLOOD TEST"
	TestECG              TestType = "ECG"
	TestEndoscopy        TestType = "ENDOSCOPY"
	TestBiopsy           TestType = "BIOPSY"
	TestNerveConduction  TestType = "NERVE CONDUCTION STUDY"
	TestUrodynamics      TestType = "URODYNAMICS"
	TestEchocardiogram   TestType = "ECHOCARDIOGRAM"
	TestLungFunction     TestType = "LUNG FUNCTION TEST"
	TestBoneDensityScan  TestType = "DEXA SCAN"
	TestNuclearBoneScan  TestType = "BONE SCAN"
	TestAudiogram        TestType = "AUDIOGRAM"
	TestAngiogram        TestType = "ANGIOGRAM"
	TestMammogram        TestType = "MAMMOGRAM"
	TestPETScan          TestType = "PET SCAN"
	TestSleepStudy       TestType = "SLEEP STUDY"
	TestCystoscopy       TestType = "CYSTOSCOPY"
	TestColonoscopy      TestType = "COLONOSCOPY"
	TestGastroscopy      TestType = "GASTROSCOPY"
	TestHolterMonitor    TestType = "HOLTER MONITOR"
	TestStressTest       TestType = "EXERCISE STRESS TEST"
	TestAllergyTest      TestType = "ALLERGY TEST"
	TestUrineTest        TestType = "URINE TEST"
	TestGeneticTest      TestType = "GENETIC TEST"
	TestVisualFieldTest  TestType = "VISUAL FIELD TEST"
	TestOCTScan          TestType = "OCT SCAN"
	TestSkinPrickTesting TestType = "SKIN PRICK TEST"
)

// TestTypes lists every TestType in extraction priority order.
var TestTypes = []TestType{
	TestMRI, TestCT, TestPETScan, TestXRay, TestUltrasound, TestBlood, TestECG,
	TestEchocardiogram, TestColonoscopy, TestGastroscopy, TestCystoscopy, TestEndoscopy,
	TestBiopsy, TestNerveConduction, TestUrodynamics, TestLungFunction,
	TestBoneDensityScan, TestNuclearBoneScan, TestAudiogram, TestAngiogram,
	TestMammogram, TestSleepStudy, TestHolterMonitor, TestStressTest,
	TestAllergyTest, TestSkinPrickTesting, TestUrineTest, TestGeneticTest,
	TestVisualFieldTest, TestOCTScan,
}

// ValidTestType reports whether t is in the closed set.
func ValidTestType(t TestType) bool {
	for _, v := range TestTypes {
		if v == t {
			return true
		}
	}
	return false
}

type Diagnosis struct {
	Condition string `json:"condition,omitempty"`
	Location  string `json:"location,omitempty"`
	Severity  string `json:"severity,omitempty"`
}

type DiagnosticTest struct {
	TestType      TestType      `json:"test_type"`
	TestDate      dates.Date    `json:"test_date"`
	Results       string        `json:"results,omitempty"`
	TemporalClass TemporalClass `json:"temporal_class"`
}

// TreatmentType distinguishes the treatment extraction rules.
type TreatmentType string

const (
	TreatmentMedication TreatmentType = "medication"
	TreatmentReferral   TreatmentType = "referral"
	TreatmentSurgery    TreatmentType = "surgery"
	TreatmentInjection  TreatmentType = "injection"
)

type Treatment struct {
	Type          TreatmentType `json:"type"`
	Detail        string        `json:"detail"`
	TemporalClass TemporalClass `json:"temporal_class"`
}

// BookingStatus is what the letter says about a follow-up booking.
type BookingStatus string

const (
	BookingUnknown BookingStatus = "unknown"
	BookingBooked  BookingStatus = "booked"
	BookingToBook  BookingStatus = "to_book"
)

type FollowUp struct {
	Required      bool          `json:"required"`
	Timeframe     string        `json:"timeframe,omitempty"`
	TargetDate    dates.Date    `json:"target_date"`
	BookingStatus BookingStatus `json:"booking_status"`
	TemporalClass TemporalClass `json:"temporal_class"`
}

type BookingRequirements struct {
	Appointments []string   `json:"appointments"`
	Diagnostics  []TestType `json:"diagnostics"`
	Surgery      bool       `json:"surgery"`
}

// ActionMention is one located action keyword and how it was classified.
type ActionMention struct {
	Category      ActionCategory `json:"category"`
	Keyword       string         `json:"keyword"`
	Offset        int            `json:"offset"`
	TemporalClass TemporalClass  `json:"temporal_class"`
}

type Plan struct {
	Text          string        `json:"text"`
	TemporalClass TemporalClass `json:"temporal_class"`
}

// LetterFact is the best-effort extraction result for one clinic letter.
type LetterFact struct {
	LetterDate          dates.Date          `json:"letter_date"`
	AppointmentDate     dates.Date          `json:"appointment_date"`
	Diagnosis           Diagnosis           `json:"diagnosis"`
	DiagnosticTests     []DiagnosticTest    `json:"diagnostic_tests"`
	Treatments          []Treatment         `json:"treatments"`
	FollowUp            FollowUp            `json:"follow_up"`
	FuturePlans         []Plan              `json:"future_plans"`
	BookingRequirements BookingRequirements `json:"booking_requirements"`
	Actions             []ActionMention     `json:"actions"`
}

// TestsWith returns the tests of the given temporal class.
func (f LetterFact) TestsWith(tc TemporalClass) []DiagnosticTest {
	var out []DiagnosticTest
	for _, t := range f.DiagnosticTests {
		if t.TemporalClass == tc {
			out = append(out, t)
		}
	}
	return out
}

// HasAction reports whether any mention of category has temporal class tc.
func (f LetterFact) HasAction(cat ActionCategory, tc TemporalClass) bool {
	for _, a := range f.Actions {
		if a.Category == cat && a.TemporalClass == tc {
			return true
		}
	}
	return false
}
