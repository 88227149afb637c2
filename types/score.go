package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Unscoreable marks a label whose model could not evaluate the instance.
var Unscoreable = math.Inf(-1)

func IsUnscoreable(score float64) bool {
	return math.IsInf(score, -1)
}

// ScoreRow maps labels to log-likelihoods, keeping the order labels were added in.
type ScoreRow struct {
	labels []string
	scores map[string]float64
}

func NewScoreRow(capacity int) ScoreRow {
	return ScoreRow{
		labels: make([]string, 0, capacity),
		scores: make(map[string]float64, capacity),
	}
}

// Set stores the score for label. A label seen for the first time is appended
// to the row order; setting it again only replaces the value.
func (row *ScoreRow) Set(label string, score float64) {
	if row.scores == nil {
		row.scores = make(map[string]float64)
	}
	if _, ok := row.scores[label]; !ok {
		row.labels = append(row.labels, label)
	}
	row.scores[label] = score
}

func (row ScoreRow) Get(label string) (float64, bool) {
	score, ok := row.scores[label]
	return score, ok
}

func (row ScoreRow) Len() int {
	return len(row.labels)
}

func (row ScoreRow) Labels() []string {
	labels := make([]string, len(row.labels))
	copy(labels, row.labels)
	return labels
}

// Each calls fn for every entry in row order.
func (row ScoreRow) Each(fn func(label string, score float64)) {
	for _, label := range row.labels {
		fn(label, row.scores[label])
	}
}

// Map returns an unordered copy of the row.
func (row ScoreRow) Map() map[string]float64 {
	m := make(map[string]float64, len(row.scores))
	for label, score := range row.scores {
		m[label] = score
	}
	return m
}

// MarshalJSON writes the row as an object in row order. Unscoreable entries are
// written as null since JSON has no infinity.
func (row ScoreRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range row.labels {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		score := row.scores[label]
		if IsUnscoreable(score) {
			buf.WriteString("null")
			continue
		}
		value, err := json.Marshal(score)
		if err != nil {
			return nil, fmt.Errorf("score for label %q: %w", label, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (row *ScoreRow) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("score row must be a JSON object")
	}
	parsed := NewScoreRow(0)
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		label, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected score row key %v", tok)
		}
		var score *float64
		if err = dec.Decode(&score); err != nil {
			return fmt.Errorf("score for label %q: %w", label, err)
		}
		if score == nil {
			parsed.Set(label, Unscoreable)
			continue
		}
		parsed.Set(label, *score)
	}
	if _, err = dec.Token(); err != nil {
		return err
	}
	*row = parsed
	return nil
}

// Guess is the label selected for an instance. NoGuess means every model failed.
type Guess string

const NoGuess Guess = ""

func (g Guess) IsNone() bool {
	return g == NoGuess
}

func (g Guess) MarshalJSON() ([]byte, error) {
	if g.IsNone() {
		return []byte("null"), nil
	}
	return json.Marshal(string(g))
}

func (g *Guess) UnmarshalJSON(data []byte) error {
	var label *string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	if label == nil {
		*g = NoGuess
		return nil
	}
	*g = Guess(*label)
	return nil
}

type RecognitionResult struct {
	Probabilities []ScoreRow `json:"probabilities"`
	Guesses       []Guess    `json:"guesses"`
	// Completed is set only when the recognition was cut short; false entries
	// hold an empty row and NoGuess.
	Completed []bool `json:"completed,omitempty"`
}

func NewRecognitionResult(size int) RecognitionResult {
	return RecognitionResult{
		Probabilities: make([]ScoreRow, size),
		Guesses:       make([]Guess, size),
	}
}

func (res RecognitionResult) Len() int {
	return len(res.Guesses)
}

func (res RecognitionResult) Complete() bool {
	for _, done := range res.Completed {
		if !done {
			return false
		}
	}
	return true
}
