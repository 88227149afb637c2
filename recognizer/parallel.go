package recognizer

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/atomic"
	"text2phenotype.com/recognizer/types"
)

type Options struct {
	// Workers is the number of goroutines scoring instances; zero means GOMAXPROCS.
	Workers int
	// ExclusiveModels serializes calls to every model, not only to models that
	// report themselves as ExclusiveScorer.
	ExclusiveModels bool
	Observer        Observer
}

func (opts Options) workers(instances int) int {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > instances {
		workers = instances
	}
	return workers
}

// RecognizeParallel is Recognize spread over a pool of workers. Each worker writes
// only the slots of the instances it took, so the output order is the input order.
//
// When ctx is done before every instance was scored, the instances already scored
// are returned, Completed marks which slots hold results and the error is ctx.Err().
// An instance whose scoring has started is always finished.
//
// A panic raised by a scorer is re-raised in the calling goroutine once all
// workers have stopped.
func RecognizeParallel(
	ctx context.Context,
	bank *ModelBank,
	testSet []types.ObservationSequence,
	opts Options,
) (types.RecognitionResult, error) {
	result := types.NewRecognitionResult(len(testSet))
	if len(testSet) == 0 {
		return result, nil
	}
	s := newInstanceScorer(bank, opts.ExclusiveModels, opts.Observer)
	completed := make([]bool, len(testSet))
	doneCount := atomic.NewInt64(0)

	var panicOnce sync.Once
	var panicked bool
	var panicValue interface{}
	stop := make(chan struct{})
	var stopOnce sync.Once

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < opts.workers(len(testSet)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// cleared only when the loop returns normally, so panic(nil) is caught too
			failed := true
			defer func() {
				if !failed {
					return
				}
				rv := recover()
				panicOnce.Do(func() {
					panicked = true
					panicValue = rv
				})
				stopOnce.Do(func() { close(stop) })
			}()
			for i := range indexes {
				if ctx.Err() != nil {
					continue
				}
				result.Probabilities[i], result.Guesses[i] = s.score(i, testSet[i])
				completed[i] = true
				doneCount.Inc()
			}
			failed = false
		}()
	}

feed:
	for i := range testSet {
		select {
		case indexes <- i:
		case <-ctx.Done():
			break feed
		case <-stop:
			break feed
		}
	}
	close(indexes)
	wg.Wait()

	if panicked {
		panic(panicValue)
	}
	if int(doneCount.Load()) == len(testSet) {
		return result, nil
	}
	for i, done := range completed {
		if !done {
			result.Probabilities[i] = types.NewScoreRow(0)
			result.Guesses[i] = types.NoGuess
		}
	}
	result.Completed = completed
	return result, ctx.Err()
}
