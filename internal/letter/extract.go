// Package letter extracts structured facts from free-text clinic letters.
// Extraction is a fixed set of patterns; anything not matched is left empty.
package letter

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"rttline/internal/dates"
	"rttline/internal/domain"
)

// Extractor turns letter text into a LetterFact. It holds no mutable state
// and is safe for concurrent use.
type Extractor struct {
	temporal *Classifier
}

// New returns an Extractor with the given options.
func New(opts Options) *Extractor {
	return &Extractor{temporal: NewClassifier(opts)}
}

// Temporal exposes the classifier used for keyword windows.
func (e *Extractor) Temporal() *Classifier { return e.temporal }

// Extract reads facts from text. Empty text yields an empty LetterFact.
func (e *Extractor) Extract(text string) domain.LetterFact {
	lower := lowerASCII(text)
	fact := domain.LetterFact{
		FollowUp: domain.FollowUp{BookingStatus: domain.BookingUnknown, TemporalClass: domain.Unclear},
	}
	if strings.TrimSpace(text) == "" {
		return fact
	}
	fact.LetterDate = firstDate(letterDateRe, text, lower)
	fact.AppointmentDate = firstDate(appointmentDateRe, text, lower)
	fact.Diagnosis = extractDiagnosis(text, lower)
	fact.DiagnosticTests, fact.Actions = e.extractTests(text, lower)
	fact.Actions = append(fact.Actions, e.extractActions(lower)...)
	sort.SliceStable(fact.Actions, func(i, j int) bool { return fact.Actions[i].Offset < fact.Actions[j].Offset })
	fact.Treatments = e.extractTreatments(lower)
	fact.FollowUp = e.extractFollowUp(lower, fact.LetterDate, fact.AppointmentDate)
	fact.FuturePlans = e.extractPlans(text, lower)
	fact.BookingRequirements = bookingRequirements(fact)
	return fact
}

func firstDate(re *regexp.Regexp, text, lower string) dates.Date {
	m := re.FindStringSubmatchIndex(lower)
	if m == nil || m[2] < 0 {
		return dates.Date{}
	}
	return dates.FromString(text[m[2]:m[3]])
}

func extractDiagnosis(text, lower string) domain.Diagnosis {
	var d domain.Diagnosis
	scope := lower
	if m := diagnosisRe.FindStringSubmatchIndex(lower); m != nil {
		d.Condition = strings.TrimRight(strings.TrimSpace(text[m[2]:m[3]]), ".;,")
		scope = lower[m[2]:m[3]]
	}
	if loc := anatomyRe.FindString(scope); loc != "" {
		d.Location = loc
	} else if loc := anatomyRe.FindString(lower); loc != "" && d.Condition == "" {
		d.Location = loc
	}
	for _, s := range severities {
		if containsWord(scope, s) {
			d.Severity = s
			break
		}
	}
	return d
}

func containsWord(s, word string) bool {
	from := 0
	for {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		from = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

type testKey struct {
	test domain.TestType
	tc   domain.TemporalClass
}

// extractTests returns one DiagnosticTest per test type and temporal class.
// Unclear mentions are dropped when the same test also has a past or future
// mention.
func (e *Extractor) extractTests(text, lower string) ([]domain.DiagnosticTest, []domain.ActionMention) {
	type found struct {
		test   domain.DiagnosticTest
		offset int
	}
	seen := map[testKey]bool{}
	decided := map[domain.TestType]bool{}
	var all []found
	var actions []domain.ActionMention
	for _, p := range testPatterns {
		for _, loc := range p.re.FindAllStringIndex(lower, -1) {
			tc := e.temporal.Classify(lower, loc[0], loc[1])
			actions = append(actions, domain.ActionMention{
				Category:      domain.CategoryDiagnostic,
				Keyword:       lower[loc[0]:loc[1]],
				Offset:        loc[0],
				TemporalClass: tc,
			})
			key := testKey{p.test, tc}
			if seen[key] {
				continue
			}
			seen[key] = true
			if tc != domain.Unclear {
				decided[p.test] = true
			}
			t := domain.DiagnosticTest{TestType: p.test, TemporalClass: tc}
			after := clip(lower, loc[1], 80)
			if m := nearbyDateRe.FindStringSubmatchIndex(after); m != nil {
				t.TestDate = dates.FromString(text[loc[1]+m[2] : loc[1]+m[3]])
			}
			if tc == domain.Past {
				if m := resultsRe.FindStringSubmatchIndex(clip(lower, loc[1], 200)); m != nil {
					t.Results = strings.TrimSpace(text[loc[1]+m[2] : loc[1]+m[3]])
				}
			}
			all = append(all, found{test: t, offset: loc[0]})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].offset < all[j].offset })
	var tests []domain.DiagnosticTest
	for _, f := range all {
		if f.test.TemporalClass == domain.Unclear && decided[f.test.TestType] {
			continue
		}
		tests = append(tests, f.test)
	}
	return tests, actions
}

func clip(s string, from, n int) string {
	end := from + n
	if end > len(s) {
		end = len(s)
	}
	return s[from:end]
}

func (e *Extractor) extractActions(lower string) []domain.ActionMention {
	var out []domain.ActionMention
	for _, p := range categoryPatterns {
		for _, loc := range p.re.FindAllStringIndex(lower, -1) {
			out = append(out, domain.ActionMention{
				Category:      p.category,
				Keyword:       lower[loc[0]:loc[1]],
				Offset:        loc[0],
				TemporalClass: e.temporal.Classify(lower, loc[0], loc[1]),
			})
		}
	}
	return out
}

type treatmentKey struct {
	kind   domain.TreatmentType
	detail string
	tc     domain.TemporalClass
}

func (e *Extractor) extractTreatments(lower string) []domain.Treatment {
	type found struct {
		t      domain.Treatment
		offset int
	}
	var all []found
	seen := map[treatmentKey]bool{}
	add := func(kind domain.TreatmentType, detail string, start, end int) {
		tc := e.temporal.Classify(lower, start, end)
		key := treatmentKey{kind, detail, tc}
		if seen[key] {
			return
		}
		seen[key] = true
		all = append(all, found{t: domain.Treatment{Type: kind, Detail: detail, TemporalClass: tc}, offset: start})
	}

	for _, m := range medicationRe.FindAllStringSubmatchIndex(lower, -1) {
		parts := []string{lower[m[2]:m[3]]}
		if m[4] >= 0 {
			parts = append(parts, lower[m[4]:m[5]])
		}
		if m[6] >= 0 {
			parts = append(parts, lower[m[6]:m[7]])
		}
		add(domain.TreatmentMedication, strings.Join(parts, " "), m[0], m[1])
	}
	for _, m := range referralRe.FindAllStringSubmatchIndex(lower, -1) {
		detail := lower[m[2]:m[3]]
		if m[4] >= 0 {
			detail += " (" + lower[m[4]:m[5]] + ")"
		}
		add(domain.TreatmentReferral, detail, m[0], m[1])
	}
	procedures := procedureRe.FindAllStringSubmatchIndex(lower, -1)
	for _, m := range procedures {
		add(domain.TreatmentSurgery, lower[m[2]:m[3]], m[0], m[1])
	}
	if len(procedures) == 0 {
		if loc := surgeryRe.FindStringIndex(lower); loc != nil {
			add(domain.TreatmentSurgery, "surgery", loc[0], loc[1])
		}
	}
	for _, loc := range injectionRe.FindAllStringIndex(lower, -1) {
		add(domain.TreatmentInjection, lower[loc[0]:loc[1]], loc[0], loc[1])
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].offset < all[j].offset })
	out := make([]domain.Treatment, 0, len(all))
	for _, f := range all {
		out = append(out, f.t)
	}
	return out
}

func (e *Extractor) extractFollowUp(lower string, letterDate, apptDate dates.Date) domain.FollowUp {
	fu := domain.FollowUp{BookingStatus: domain.BookingUnknown, TemporalClass: domain.Unclear}
	if noFollowUpRe.MatchString(lower) {
		return fu
	}
	loc := followUpRe.FindStringIndex(lower)
	if loc == nil {
		return fu
	}
	fu.Required = true
	fu.TemporalClass = e.temporal.Classify(lower, loc[0], loc[1])

	around := clip(lower, max(0, loc[0]-80), 200+min(80, loc[0]))
	if m := timeframeRe.FindStringSubmatch(around); m != nil {
		fu.Timeframe = m[1] + " " + m[2]
		base := letterDate
		if !base.Valid() {
			base = apptDate
		}
		if base.Valid() {
			fu.TargetDate = addTimeframe(base, m[1], m[2])
		}
	}
	if !fu.TargetDate.Valid() {
		if m := nearbyDateRe.FindStringSubmatch(clip(lower, loc[1], 80)); m != nil {
			fu.TargetDate = dates.FromString(m[1])
		}
	}
	switch {
	case bookedRe.MatchString(around):
		fu.BookingStatus = domain.BookingBooked
	case toBookRe.MatchString(around):
		fu.BookingStatus = domain.BookingToBook
	}
	return fu
}

func addTimeframe(base dates.Date, amount, unit string) dates.Date {
	n, err := strconv.Atoi(amount)
	if err != nil {
		n = numberWords[amount]
	}
	if n <= 0 {
		return dates.Date{}
	}
	t, _ := base.Time()
	switch strings.TrimSuffix(unit, "s") {
	case "day":
		t = t.AddDate(0, 0, n)
	case "week":
		t = t.AddDate(0, 0, 7*n)
	case "month":
		t = t.AddDate(0, n, 0)
	case "year":
		t = t.AddDate(n, 0, 0)
	}
	return dates.Of(t)
}

// extractPlans returns each sentence that carries a future marker.
func (e *Extractor) extractPlans(text, lower string) []domain.Plan {
	var plans []domain.Plan
	start := 0
	bounds := sentenceSplitRe.FindAllStringIndex(lower, -1)
	bounds = append(bounds, []int{len(lower), len(lower)})
	for _, b := range bounds {
		sentence := lower[start:b[0]]
		raw := strings.TrimSpace(text[start:b[0]])
		start = b[1]
		if raw == "" {
			continue
		}
		for _, m := range e.temporal.future {
			if strings.Contains(sentence, m) {
				plans = append(plans, domain.Plan{Text: raw, TemporalClass: domain.Future})
				break
			}
		}
	}
	return plans
}

func bookingRequirements(f domain.LetterFact) domain.BookingRequirements {
	var br domain.BookingRequirements
	if f.FollowUp.Required && f.FollowUp.BookingStatus != domain.BookingBooked && f.FollowUp.TemporalClass != domain.Past {
		appt := "FOLLOW-UP APPOINTMENT"
		if f.FollowUp.Timeframe != "" {
			appt += " IN " + strings.ToUpper(f.FollowUp.Timeframe)
		}
		br.Appointments = append(br.Appointments, appt)
	}
	for _, t := range f.Treatments {
		if t.Type == domain.TreatmentReferral && t.TemporalClass == domain.Future {
			br.Appointments = append(br.Appointments, "REFERRAL: "+strings.ToUpper(t.Detail))
		}
		if t.Type == domain.TreatmentSurgery && t.TemporalClass == domain.Future {
			br.Surgery = true
		}
	}
	seen := map[domain.TestType]bool{}
	for _, t := range f.TestsWith(domain.Future) {
		if !seen[t.TestType] {
			seen[t.TestType] = true
			br.Diagnostics = append(br.Diagnostics, t.TestType)
		}
	}
	if f.HasAction(domain.CategoryWaitingList, domain.Future) {
		br.Surgery = true
	}
	return br
}
