package recognizer

import (
	"math"
	"sync"

	"text2phenotype.com/recognizer/types"
)

// Observer receives per-instance events of a recognition call. Implementations
// must be safe for concurrent use when passed to RecognizeParallel.
type Observer interface {
	ScoringFailed(instance int, label string, err error)
	InstanceRecognized(instance int, guess types.Guess)
}

// Recognize scores every instance of testSet against every model of bank and picks,
// per instance, the label with the highest log-likelihood. Rows and guesses follow
// the order of testSet. A model that fails on an instance gets types.Unscoreable
// for it and cannot be guessed; on equal scores the label added to the bank first wins.
func Recognize(bank *ModelBank, testSet []types.ObservationSequence) types.RecognitionResult {
	result := types.NewRecognitionResult(len(testSet))
	s := newInstanceScorer(bank, false, nil)
	for i, seq := range testSet {
		result.Probabilities[i], result.Guesses[i] = s.score(i, seq)
	}
	return result
}

type instanceScorer struct {
	bank     *ModelBank
	locks    []*sync.Mutex
	observer Observer
}

// newInstanceScorer prepares a per-model mutex for scorers that cannot be called
// concurrently, or for every model when exclusiveAll is set.
func newInstanceScorer(bank *ModelBank, exclusiveAll bool, observer Observer) *instanceScorer {
	s := &instanceScorer{
		bank:     bank,
		locks:    make([]*sync.Mutex, bank.Len()),
		observer: observer,
	}
	for i := range s.locks {
		if exclusiveAll || isExclusive(bank.entries[i].scorer) {
			s.locks[i] = &sync.Mutex{}
		}
	}
	return s
}

func (s *instanceScorer) score(instance int, seq types.ObservationSequence) (types.ScoreRow, types.Guess) {
	bestScore := math.Inf(-1)
	bestGuess := types.NoGuess
	row := types.NewScoreRow(s.bank.Len())

	for i := 0; i < s.bank.Len(); i++ {
		entry := s.bank.entries[i]
		score, err := s.scoreModel(i, seq)
		if err != nil {
			row.Set(entry.label, types.Unscoreable)
			if s.observer != nil {
				s.observer.ScoringFailed(instance, entry.label, err)
			}
			continue
		}
		row.Set(entry.label, score)
		if score > bestScore {
			bestScore = score
			bestGuess = types.Guess(entry.label)
		}
	}
	if s.observer != nil {
		s.observer.InstanceRecognized(instance, bestGuess)
	}
	return row, bestGuess
}

func (s *instanceScorer) scoreModel(i int, seq types.ObservationSequence) (float64, error) {
	if lock := s.locks[i]; lock != nil {
		lock.Lock()
		defer lock.Unlock()
	}
	score, err := s.bank.entries[i].scorer.Score(seq)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(score) {
		return 0, ScoringErrorf("model returned NaN")
	}
	if math.IsInf(score, 1) {
		return 0, ScoringErrorf("model returned +Inf")
	}
	return score, nil
}
