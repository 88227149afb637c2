package recognizer

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateLabel = errors.New("duplicate label")
	ErrEmptyLabel     = errors.New("empty label")
	ErrNilScorer      = errors.New("nil scorer")
)

type bankEntry struct {
	label  string
	scorer Scorer
}

// ModelBank maps labels to scorers. Iteration follows insertion order, which
// decides ties between equal scores. A nil *ModelBank behaves as an empty bank.
type ModelBank struct {
	entries []bankEntry
	index   map[string]int
}

func NewModelBank() *ModelBank {
	return &ModelBank{index: make(map[string]int)}
}

func (bank *ModelBank) Add(label string, scorer Scorer) error {
	if label == "" {
		return ErrEmptyLabel
	}
	if scorer == nil {
		return fmt.Errorf("%w for label %q", ErrNilScorer, label)
	}
	if bank.index == nil {
		bank.index = make(map[string]int)
	}
	if _, ok := bank.index[label]; ok {
		return fmt.Errorf("%w %q", ErrDuplicateLabel, label)
	}
	bank.index[label] = len(bank.entries)
	bank.entries = append(bank.entries, bankEntry{label: label, scorer: scorer})
	return nil
}

func (bank *ModelBank) Len() int {
	if bank == nil {
		return 0
	}
	return len(bank.entries)
}

func (bank *ModelBank) Labels() []string {
	labels := make([]string, bank.Len())
	for i := range labels {
		labels[i] = bank.entries[i].label
	}
	return labels
}

func (bank *ModelBank) Get(label string) (Scorer, bool) {
	if bank == nil {
		return nil, false
	}
	i, ok := bank.index[label]
	if !ok {
		return nil, false
	}
	return bank.entries[i].scorer, true
}

// Each calls fn for every model in insertion order.
func (bank *ModelBank) Each(fn func(label string, scorer Scorer)) {
	for i := 0; i < bank.Len(); i++ {
		fn(bank.entries[i].label, bank.entries[i].scorer)
	}
}
