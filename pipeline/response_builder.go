package pipeline

import (
	"sort"
	"sync"

	"text2phenotype.com/recognizer/modelbank"
	"text2phenotype.com/recognizer/types"
)

type Result struct {
	ConfigName string
	Data       interface{}
}

type Failure struct {
	Instance int    `json:"instance"`
	Label    string `json:"label"`
	Reason   string `json:"reason"`
}

// RecognitionResponse is the per-configuration part of the pipeline response.
type RecognitionResponse struct {
	Bank          string           `json:"bank"`
	Fingerprint   string           `json:"fingerprint"`
	Probabilities []types.ScoreRow `json:"probabilities"`
	Guesses       []types.Guess    `json:"guesses"`
	Completed     []bool           `json:"completed,omitempty"`
	Failures      []Failure        `json:"failures,omitempty"`
	Error         string           `json:"error,omitempty"`
}

func newRecognitionResult(
	configName string,
	bank *modelbank.Bank,
	res types.RecognitionResult,
	err error,
	diagnostics *failureCollector,
) Result {
	response := RecognitionResponse{
		Bank:          bank.Name,
		Fingerprint:   bank.FingerprintHex(),
		Probabilities: res.Probabilities,
		Guesses:       res.Guesses,
		Completed:     res.Completed,
	}
	if err != nil {
		response.Error = err.Error()
	}
	if diagnostics != nil {
		response.Failures = diagnostics.sorted()
	}
	return Result{ConfigName: configName, Data: response}
}

type failureCollector struct {
	mu       sync.Mutex
	failures []Failure
}

func (c *failureCollector) ScoringFailed(instance int, label string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, Failure{Instance: instance, Label: label, Reason: err.Error()})
}

func (c *failureCollector) InstanceRecognized(int, types.Guess) {}

// sorted orders failures by instance. Failures of one instance keep the bank order
// because a single worker scores an instance.
func (c *failureCollector) sorted() []Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Failure, len(c.failures))
	copy(out, c.failures)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Instance < out[j].Instance
	})
	return out
}
