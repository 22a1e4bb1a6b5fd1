// Package batch runs the validation pipeline over many records with a
// bounded worker pool and summarises the outcome.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rttline/internal/domain"
	"rttline/internal/pipeline"
)

// DefaultWorkers is used when Workers is not positive.
const DefaultWorkers = 4

// Validator is the per-record pipeline.
type Validator interface {
	Validate(in pipeline.Input) (domain.ValidationResult, error)
}

// Failure is a record that produced no result.
type Failure struct {
	Index         int    `json:"index"`
	PathwayNumber string `json:"pathway_number,omitempty"`
	Error         string `json:"error"`
}

// Report summarises a batch. Failed records are excluded from every count
// except Records and Errors.
type Report struct {
	Records           int                       `json:"records"`
	Total             int                       `json:"total"`
	Errors            int                       `json:"errors"`
	PassRate          float64                   `json:"pass_rate"`
	StatusCounts      map[domain.Status]int     `json:"status_counts"`
	SeverityBreakdown map[domain.Severity]int   `json:"severity_breakdown"`
	GapFrequency      map[string]int            `json:"gap_frequency"`
	AutoFixRate       float64                   `json:"auto_fix_rate"`
	Results           []domain.ValidationResult `json:"results"`
	Failures          []Failure                 `json:"failures"`
}

// Reject records an input that failed before it reached the pipeline, such
// as a spreadsheet row that could not be converted.
func (r *Report) Reject(index int, pathwayNumber string, err error) {
	r.Records++
	r.Errors++
	r.Failures = append(r.Failures, Failure{Index: index, PathwayNumber: pathwayNumber, Error: err.Error()})
	sort.SliceStable(r.Failures, func(i, j int) bool { return r.Failures[i].Index < r.Failures[j].Index })
}

// GapCount is one row of a ranked gap frequency table.
type GapCount struct {
	RuleID string `json:"rule_id"`
	Count  int    `json:"count"`
}

// TopGaps returns gap frequencies, most frequent first.
func (r Report) TopGaps() []GapCount {
	out := make([]GapCount, 0, len(r.GapFrequency))
	for id, n := range r.GapFrequency {
		out = append(out, GapCount{RuleID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

// Orchestrator fans records out to Workers goroutines.
type Orchestrator struct {
	Validator Validator
	Workers   int
	Log       zerolog.Logger
	// OnResult, when set, is called once per scored record. It may be called
	// from several goroutines at once.
	OnResult func(index int, res domain.ValidationResult)
}

type outcome struct {
	res *domain.ValidationResult
	err error
}

// Run validates every input. Records are independent: a failing or
// panicking record is reported and the rest continue. Cancelling ctx stops
// new records from starting; the partial report is returned with ctx.Err().
func (o Orchestrator) Run(ctx context.Context, inputs []pipeline.Input) (Report, error) {
	workers := o.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	outcomes := make([]*outcome, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, in := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := o.validateOne(in)
			outcomes[i] = &outcome{res: res, err: err}
			if err != nil {
				o.Log.Warn().Int("index", i).Str("pathway_number", in.Key()).Err(err).Msg("record failed")
				return nil
			}
			if o.OnResult != nil {
				o.OnResult(i, *res)
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := summarise(inputs, outcomes)
	o.Log.Info().
		Int("records", rep.Records).
		Int("scored", rep.Total).
		Int("errors", rep.Errors).
		Float64("pass_rate", rep.PassRate).
		Msg("batch complete")
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

func (o Orchestrator) validateOne(in pipeline.Input) (res *domain.ValidationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			var stack [4096]byte
			n := runtime.Stack(stack[:], false)
			o.Log.Error().Str("pathway_number", in.Key()).Str("panic", fmt.Sprintf("%v", r)).Str("stack", string(stack[:n])).Msg("panic recovered")
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	out, err := o.Validator.Validate(in)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func summarise(inputs []pipeline.Input, outcomes []*outcome) Report {
	rep := Report{
		Records:           len(inputs),
		StatusCounts:      map[domain.Status]int{},
		SeverityBreakdown: map[domain.Severity]int{},
		GapFrequency:      map[string]int{},
		Results:           []domain.ValidationResult{},
		Failures:          []Failure{},
	}
	gapsTotal, autoFixed := 0, 0
	for i, oc := range outcomes {
		if oc == nil {
			continue
		}
		if oc.err != nil {
			rep.Failures = append(rep.Failures, Failure{Index: i, PathwayNumber: inputs[i].Key(), Error: oc.err.Error()})
			continue
		}
		res := *oc.res
		rep.Results = append(rep.Results, res)
		rep.StatusCounts[res.Status]++
		rep.SeverityBreakdown[res.Severity]++
		for _, g := range res.Gaps {
			rep.GapFrequency[g.RuleID]++
		}
		gapsTotal += len(res.Gaps)
		for _, f := range res.Fixes {
			if f.Applied() {
				autoFixed++
			}
		}
	}
	rep.Total = len(rep.Results)
	rep.Errors = len(rep.Failures)
	if rep.Total > 0 {
		rep.PassRate = float64(rep.StatusCounts[domain.StatusPass]) / float64(rep.Total)
	}
	if gapsTotal > 0 {
		rep.AutoFixRate = float64(autoFixed) / float64(gapsTotal)
	}
	return rep
}
