package hmm

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"text2phenotype.com/recognizer/recognizer"
	"text2phenotype.com/recognizer/types"
)

const small = 1e-9

func twoStateModel(t *testing.T) *Model {
	t.Helper()
	m := &Model{
		NComponents: 2,
		NFeatures:   2,
		StartProb:   []float64{0.6, 0.4},
		TransMat: [][]float64{
			{0.7, 0.3},
			{0.2, 0.8},
		},
		Means: [][]float64{
			{0, 0},
			{3, -1},
		},
		Covars: [][]float64{
			{1, 2},
			{0.5, 1},
		},
	}
	require.NoError(t, m.Prepare())
	return m
}

func gaussianLogPdf(x, mean, variance []float64) float64 {
	ll := 0.0
	for f := range x {
		d := x[f] - mean[f]
		ll += -0.5*math.Log(2*math.Pi*variance[f]) - 0.5*d*d/variance[f]
	}
	return ll
}

// bruteForceLogLikelihood sums the joint probability of every state path.
func bruteForceLogLikelihood(m *Model, frames [][]float64) float64 {
	n, T := m.NComponents, len(frames)
	path := make([]int, T)
	total := 0.0
	var walk func(t int)
	walk = func(t int) {
		if t == T {
			lp := math.Log(m.StartProb[path[0]]) + gaussianLogPdf(frames[0], m.Means[path[0]], m.Covars[path[0]])
			for k := 1; k < T; k++ {
				lp += math.Log(m.TransMat[path[k-1]][path[k]])
				lp += gaussianLogPdf(frames[k], m.Means[path[k]], m.Covars[path[k]])
			}
			total += math.Exp(lp)
			return
		}
		for s := 0; s < n; s++ {
			path[t] = s
			walk(t + 1)
		}
	}
	walk(0)
	return math.Log(total)
}

func TestScoreSingleGaussian(t *testing.T) {
	m := &Model{
		NComponents: 1,
		NFeatures:   1,
		StartProb:   []float64{1},
		TransMat:    [][]float64{{1}},
		Means:       [][]float64{{0}},
		Covars:      [][]float64{{1}},
	}
	require.NoError(t, m.Prepare())

	score, err := m.Score(types.NewObservationSequence([][]float64{{0}}))
	require.NoError(t, err)
	assert.InDelta(t, -0.5*math.Log(2*math.Pi), score, small)

	score, err = m.Score(types.NewObservationSequence([][]float64{{0}, {1}}))
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(2*math.Pi)-0.5, score, small)
}

func TestScoreMatchesBruteForce(t *testing.T) {
	m := twoStateModel(t)
	frames := [][]float64{{0.1, -0.2}, {2.5, -1.1}, {3.2, -0.7}, {0.4, 0.3}}

	score, err := m.Score(types.NewObservationSequence(frames))
	require.NoError(t, err)
	assert.InDelta(t, bruteForceLogLikelihood(m, frames), score, 1e-7)
}

func TestScorePackedSegments(t *testing.T) {
	m := twoStateModel(t)
	first := [][]float64{{0.1, -0.2}, {2.5, -1.1}}
	second := [][]float64{{3.2, -0.7}, {0.4, 0.3}, {0, 0}}

	a, err := m.Score(types.NewObservationSequence(first))
	require.NoError(t, err)
	b, err := m.Score(types.NewObservationSequence(second))
	require.NoError(t, err)

	packed := append(append([][]float64{}, first...), second...)
	score, err := m.Score(types.NewObservationSequence(packed, 2, 3))
	require.NoError(t, err)
	assert.InDelta(t, a+b, score, small)
}

func TestSphericalCovariance(t *testing.T) {
	spherical := &Model{
		NComponents:    1,
		NFeatures:      3,
		CovarianceType: CovarianceSpherical,
		StartProb:      []float64{1},
		TransMat:       [][]float64{{1}},
		Means:          [][]float64{{1, 2, 3}},
		Covars:         [][]float64{{2}},
	}
	require.NoError(t, spherical.Prepare())
	diag := &Model{
		NComponents: 1,
		NFeatures:   3,
		StartProb:   []float64{1},
		TransMat:    [][]float64{{1}},
		Means:       [][]float64{{1, 2, 3}},
		Covars:      [][]float64{{2, 2, 2}},
	}
	require.NoError(t, diag.Prepare())

	seq := types.NewObservationSequence([][]float64{{0, 0, 0}, {1, 1, 1}})
	s1, err := spherical.Score(seq)
	require.NoError(t, err)
	s2, err := diag.Score(seq)
	require.NoError(t, err)
	assert.InDelta(t, s2, s1, small)
}

func TestScoreFailures(t *testing.T) {
	m := twoStateModel(t)
	cases := map[string]types.ObservationSequence{
		"dimension mismatch": types.NewObservationSequence([][]float64{{1, 2, 3}}),
		"empty":              types.NewObservationSequence(nil),
		"ragged frames":      types.NewObservationSequence([][]float64{{1, 2}, {1}}),
		"lengths mismatch":   types.NewObservationSequence([][]float64{{1, 2}, {1, 2}}, 3),
		"zero length":        types.NewObservationSequence([][]float64{{1, 2}, {1, 2}}, 0, 2),
		"underflow":          types.NewObservationSequence([][]float64{{1e200, -1e200}}),
		"segment too long":   types.NewObservationSequence([][]float64{{1, 2}, {1, 2}}, 1, 2),
		"wrapping lengths": types.NewObservationSequence(
			[][]float64{{0, 0}, {1, 1}}, math.MaxInt64, math.MaxInt64, 4),
	}
	for name, seq := range cases {
		var err error
		require.NotPanics(t, func() { _, err = m.Score(seq) }, name)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, recognizer.ErrScoring, name)
	}

	var unprepared Model
	_, err := unprepared.Score(types.NewObservationSequence([][]float64{{1}}))
	assert.ErrorIs(t, err, recognizer.ErrScoring)
}

func TestValidate(t *testing.T) {
	valid := func() *Model {
		return &Model{
			NComponents: 2,
			NFeatures:   1,
			StartProb:   []float64{0.5, 0.5},
			TransMat:    [][]float64{{0.5, 0.5}, {0, 1}},
			Means:       [][]float64{{0}, {1}},
			Covars:      [][]float64{{1}, {1}},
		}
	}
	require.NoError(t, valid().Prepare())

	mutations := map[string]func(m *Model){
		"no components":        func(m *Model) { m.NComponents = 0 },
		"no features":          func(m *Model) { m.NFeatures = 0 },
		"startprob sum":        func(m *Model) { m.StartProb = []float64{0.5, 0.6} },
		"startprob negative":   func(m *Model) { m.StartProb = []float64{1.5, -0.5} },
		"transmat rows":        func(m *Model) { m.TransMat = m.TransMat[:1] },
		"transmat row sum":     func(m *Model) { m.TransMat[1] = []float64{0.2, 0.2} },
		"means shape":          func(m *Model) { m.Means[0] = []float64{0, 1} },
		"zero variance":        func(m *Model) { m.Covars[1] = []float64{0} },
		"unknown covariance":   func(m *Model) { m.CovarianceType = "full" },
		"spherical covars row": func(m *Model) { m.CovarianceType = CovarianceSpherical; m.Covars[0] = []float64{1, 1} },
	}
	for name, mutate := range mutations {
		m := valid()
		mutate(m)
		assert.ErrorIs(t, m.Prepare(), ErrInvalidModel, name)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	body := `{
		"n_components": 1,
		"n_features": 2,
		"startprob": [1.0],
		"transmat": [[1.0]],
		"means": [[0.0, 0.0]],
		"covars": [[1.0, 1.0]]
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CovarianceDiag, m.CovarianceType)
	score, err := m.Score(types.NewObservationSequence([][]float64{{0, 0}}))
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(2*math.Pi), score, small)

	_, err = Decode(strings.NewReader(`{"n_components": 1}`))
	assert.ErrorIs(t, err, ErrInvalidModel)

	_, err = Decode(strings.NewReader(`not json`))
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestRecognizeWithHMMs(t *testing.T) {
	low := &Model{
		NComponents: 1, NFeatures: 1,
		StartProb: []float64{1}, TransMat: [][]float64{{1}},
		Means: [][]float64{{-5}}, Covars: [][]float64{{1}},
	}
	high := &Model{
		NComponents: 1, NFeatures: 1,
		StartProb: []float64{1}, TransMat: [][]float64{{1}},
		Means: [][]float64{{5}}, Covars: [][]float64{{1}},
	}
	wide := &Model{
		NComponents: 1, NFeatures: 2,
		StartProb: []float64{1}, TransMat: [][]float64{{1}},
		Means: [][]float64{{0, 0}}, Covars: [][]float64{{1, 1}},
	}
	for _, m := range []*Model{low, high, wide} {
		require.NoError(t, m.Prepare())
	}
	bank := recognizer.NewModelBank()
	require.NoError(t, bank.Add("LOW", low))
	require.NoError(t, bank.Add("HIGH", high))
	require.NoError(t, bank.Add("WIDE", wide))

	testSet := []types.ObservationSequence{
		types.NewObservationSequence([][]float64{{-4.5}, {-5.5}}),
		types.NewObservationSequence([][]float64{{4.9}, {5.2}, {6}}),
	}
	res := recognizer.Recognize(bank, testSet)
	assert.Equal(t, []types.Guess{"LOW", "HIGH"}, res.Guesses)
	for _, row := range res.Probabilities {
		score, ok := row.Get("WIDE")
		require.True(t, ok)
		assert.True(t, types.IsUnscoreable(score))
	}
}
