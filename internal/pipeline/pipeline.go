// Package pipeline runs one pathway through extraction, classification,
// clock, gap analysis, fixes and comment composition. It does no I/O and
// holds no mutable state, so one Validator may serve many goroutines.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"rttline/internal/autofix"
	"rttline/internal/classify"
	"rttline/internal/clock"
	"rttline/internal/comment"
	"rttline/internal/config"
	"rttline/internal/domain"
	"rttline/internal/gaps"
	"rttline/internal/letter"
)

// ErrUnscorable marks input the pipeline cannot produce a result for.
var ErrUnscorable = errors.New("record cannot be validated")

// Input is one validation call. Record and LetterText are each optional but
// at least one must be present.
type Input struct {
	Record     *domain.PathwayRecord `json:"record,omitempty"`
	LetterText string                `json:"letter_text,omitempty"`
	PAS        *domain.PASSnapshot   `json:"pas,omitempty"`
}

// Key identifies the input in batch reports.
func (in Input) Key() string {
	if in.Record != nil {
		return in.Record.PathwayNumber
	}
	return ""
}

// Validator is the configured pipeline.
type Validator struct {
	extractor *letter.Extractor
	analyzer  *gaps.Analyzer
	cfg       *config.Config
	// Now supplies the evaluation date; tests pin it.
	Now func() time.Time
}

// New builds a Validator from cfg; nil means defaults.
func New(cfg *config.Config) *Validator {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Validator{
		extractor: letter.New(letter.Options{
			Window:        cfg.Letters.TemporalWindow,
			PastMarkers:   cfg.Letters.PastMarkers,
			FutureMarkers: cfg.Letters.FutureMarkers,
		}),
		analyzer: gaps.New(gaps.Options{FullAudit: cfg.Gaps.FullAudit}),
		cfg:      cfg,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Extract exposes the letter extractor.
func (v *Validator) Extract(text string) domain.LetterFact {
	return v.extractor.Extract(text)
}

// Validate runs the pipeline. Malformed fields become gaps; only input
// with no pathway number or no usable clock start returns an error.
func (v *Validator) Validate(in Input) (domain.ValidationResult, error) {
	hasLetter := strings.TrimSpace(in.LetterText) != ""
	if in.Record == nil && !hasLetter {
		return domain.ValidationResult{}, fmt.Errorf("%w: no pathway record or letter text", ErrUnscorable)
	}
	if in.Record != nil && strings.TrimSpace(in.Record.PathwayNumber) == "" {
		return domain.ValidationResult{}, fmt.Errorf("%w: pathway_number is required", ErrUnscorable)
	}
	now := v.Now()
	var pas domain.PASSnapshot
	if in.PAS != nil {
		pas = *in.PAS
	}

	var facts *domain.LetterFact
	var cls domain.Classification
	if hasLetter {
		f := v.extractor.Extract(in.LetterText)
		facts = &f
		cls = classify.ClassifyText(in.LetterText)
	} else {
		cls = classify.ClassifyRecord(*in.Record)
	}

	var outcome *domain.ClockOutcome
	var record domain.PathwayRecord
	if in.Record != nil {
		record = *in.Record
		o, err := clock.Compute(record, now)
		if err != nil {
			return domain.ValidationResult{}, fmt.Errorf("%w: %w", ErrUnscorable, err)
		}
		outcome = &o
	}

	analysis := v.analyzer.Analyze(gaps.Input{
		Record:         in.Record,
		Facts:          facts,
		PAS:            pas,
		Classification: cls,
		Clock:          outcome,
		Now:            now,
	})
	fixes := autofix.ProposeAll(analysis.Gaps, record)

	res := domain.ValidationResult{
		PathwayNumber:  in.Key(),
		Status:         Verdict(analysis.Gaps, fixes, cls, facts != nil),
		Severity:       gaps.MaxSeverity(analysis.Gaps),
		Classification: cls,
		Gaps:           nonNil(analysis.Gaps),
		Fixes:          nonNilFixes(fixes),
		Facts:          facts,
		Audit:          analysis.Audit,
		ValidatedAt:    now,
	}
	if outcome != nil {
		res.Clock = *outcome
	} else {
		res.Clock = domain.ClockOutcome{Status: domain.ClockIncomplete, Breach: domain.BreachNone, CurrentCode: cls.Code}
	}
	specialty := ""
	if in.Record != nil {
		specialty = in.Record.Specialty
	}
	res.Comment = comment.Compose(comment.Params{
		Record:         in.Record,
		Facts:          facts,
		PAS:            pas,
		Classification: cls,
		Clock:          outcome,
		Gaps:           analysis.Gaps,
		Fixes:          fixes,
		Now:            now,
		Team:           v.cfg.TeamFor(specialty),
	})
	return res, nil
}

// Verdict derives the overall status. Gaps closed by an auto-applied fix do
// not count.
func Verdict(gs []domain.Gap, fixes []domain.Fix, cls domain.Classification, hasLetter bool) domain.Status {
	resolved := autofix.Resolved(fixes)
	review := hasLetter && cls.Defaulted
	for _, g := range gs {
		if resolved[autofix.Key(g.RuleID, g.Field)] {
			continue
		}
		if g.Severity == domain.SeverityCritical || g.Severity == domain.SeverityHigh {
			return domain.StatusFail
		}
		review = true
	}
	for _, f := range fixes {
		if !f.Applied() {
			review = true
		}
	}
	if review {
		return domain.StatusNeedsReview
	}
	return domain.StatusPass
}

func nonNil(gs []domain.Gap) []domain.Gap {
	if gs == nil {
		return []domain.Gap{}
	}
	return gs
}

func nonNilFixes(fs []domain.Fix) []domain.Fix {
	if fs == nil {
		return []domain.Fix{}
	}
	return fs
}
