package recognizer

import (
	"errors"
	"fmt"

	"text2phenotype.com/recognizer/types"
)

// ErrScoring matches every failure a Scorer reports for a sequence it cannot evaluate.
var ErrScoring = errors.New("scoring failure")

// Scorer evaluates the log-likelihood of an observation sequence under one trained
// model. Score must be deterministic and must not modify the model or the sequence.
// A returned error means the model could not evaluate the sequence; scorers should
// wrap such failures with NewScoringError. Panics are programmer errors and are
// not recovered by the engine.
type Scorer interface {
	Score(seq types.ObservationSequence) (float64, error)
}

type ScorerFunc func(seq types.ObservationSequence) (float64, error)

func (f ScorerFunc) Score(seq types.ObservationSequence) (float64, error) {
	return f(seq)
}

// ExclusiveScorer is implemented by scorers whose internal state does not allow
// concurrent Score calls. The engine serializes calls to such a model.
type ExclusiveScorer interface {
	Scorer
	Exclusive() bool
}

type ScoringError struct {
	Reason string
	Err    error
}

func NewScoringError(reason string, err error) error {
	return &ScoringError{Reason: reason, Err: err}
}

func ScoringErrorf(format string, args ...interface{}) error {
	return &ScoringError{Reason: fmt.Sprintf(format, args...)}
}

func (e *ScoringError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrScoring, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrScoring, e.Reason, e.Err)
}

func (e *ScoringError) Unwrap() error {
	return e.Err
}

func (e *ScoringError) Is(target error) bool {
	return target == ErrScoring
}

func isExclusive(scorer Scorer) bool {
	exclusive, ok := scorer.(ExclusiveScorer)
	return ok && exclusive.Exclusive()
}
