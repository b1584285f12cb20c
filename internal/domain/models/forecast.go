package models

import "time"

// Frame is the forecaster's input: aligned daily dates, target values and an
// optional auxiliary regressor column. Y may be nil for prediction frames.
type Frame struct {
	Dates     []time.Time
	Y         []float64
	Regressor []float64
}

func (f Frame) Len() int { return len(f.Dates) }

// HasRegressor reports whether the frame carries a regressor column.
func (f Frame) HasRegressor() bool { return f.Regressor != nil }

// Prediction is one forecaster output row.
type Prediction struct {
	Timestamp time.Time
	Point     float64
	Lower     float64
	Upper     float64
}

// ComponentSeries is one additive component evaluated over the history.
type ComponentSeries struct {
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
	Lower  []float64 `json:"lower_bound"`
	Upper  []float64 `json:"upper_bound"`
}

// Component names.
const (
	ComponentTrend           = "trend"
	ComponentWeekly          = "weekly"
	ComponentExtraRegressors = "extra_regressors"
)

// RunStatus is the outcome of one asset's training run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunSkipped   RunStatus = "skipped"
	RunFailed    RunStatus = "failed"
)

// RunResult reports a single asset's training run.
type RunResult struct {
	Asset    string        `json:"asset"`
	Status   RunStatus     `json:"status"`
	Version  int           `json:"version,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// SweepReport aggregates the results of a training sweep. Reference is nil
// when the reference asset is not part of the sweep.
type SweepReport struct {
	Reference  *RunResult  `json:"reference,omitempty"`
	Dependents []RunResult `json:"dependents"`
}

// Results returns every run, reference first.
func (r SweepReport) Results() []RunResult {
	out := make([]RunResult, 0, len(r.Dependents)+1)
	if r.Reference != nil {
		out = append(out, *r.Reference)
	}
	return append(out, r.Dependents...)
}

// Count returns how many runs ended with status s.
func (r SweepReport) Count(s RunStatus) int {
	n := 0
	for _, res := range r.Results() {
		if res.Status == s {
			n++
		}
	}
	return n
}

// FetchResult reports a single asset's history fetch.
type FetchResult struct {
	Asset    string `json:"asset"`
	Points   int    `json:"points"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
	Err      error  `json:"-"`
}
