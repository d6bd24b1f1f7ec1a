package samplefinder

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Match is a candidate whose similarity reached the threshold.
type Match struct {
	Path       string  `json:"path"`
	Similarity float64 `json:"similarity"`
	Distance   float64 `json:"distance"`
}

// Similarity converts an alignment distance to a score. It is not
// normalised: large distances give large negative scores and +Inf gives -Inf.
func Similarity(distance float64) float64 {
	return 1 - distance
}

// Outcome classifies what happened to one candidate.
type Outcome string

const (
	OutcomeMatch          Outcome = "match"
	OutcomeBelowThreshold Outcome = "below_threshold"
	OutcomeDecodeError    Outcome = "decode_error"
	OutcomeExtractError   Outcome = "extract_error"
	OutcomeAlignError     Outcome = "align_error"
	OutcomeQueryError     Outcome = "query_error"
)

var ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")

// Threshold is a minimum similarity in [0, 1]. The zero value is 0.
type Threshold struct {
	v float64
}

func NewThreshold(v float64) (Threshold, error) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return Threshold{}, fmt.Errorf("%w: got %v", ErrInvalidThreshold, v)
	}
	return Threshold{v: v}, nil
}

// ThresholdFromPercent accepts 0..100.
func ThresholdFromPercent(p float64) (Threshold, error) {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return Threshold{}, fmt.Errorf("%w: got %v%%", ErrInvalidThreshold, p)
	}
	return Threshold{v: p / 100}, nil
}

func DefaultThreshold() Threshold { return Threshold{v: 0.25} }

func (t Threshold) Value() float64   { return t.v }
func (t Threshold) Percent() float64 { return t.v * 100 }

func (t Threshold) String() string {
	return fmt.Sprintf("%.2f%%", t.Percent())
}

// Accepts reports whether a similarity score passes the threshold.
func (t Threshold) Accepts(similarity float64) bool {
	return similarity >= t.v
}

func (t Threshold) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.v)
}

func (t *Threshold) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewThreshold(v)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Event is a scan notification. It is implemented only by ProgressEvent and
// EtaEvent.
type Event interface {
	isEvent()
}

// ProgressEvent follows each processed candidate. Processed runs 1..Total.
type ProgressEvent struct {
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Path      string `json:"path"`
}

func (ProgressEvent) isEvent() {}

func (p ProgressEvent) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Processed) / float64(p.Total)
}

// EtaEvent estimates time left from the mean time per candidate so far.
type EtaEvent struct {
	Remaining time.Duration `json:"remaining"`
}

func (EtaEvent) isEvent() {}

// Seconds is the estimate truncated to whole seconds.
func (e EtaEvent) Seconds() int {
	return int(e.Remaining / time.Second)
}
