package hmm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	CovarianceDiag      = "diag"
	CovarianceSpherical = "spherical"

	stochasticTolerance = 1e-6
)

var ErrInvalidModel = errors.New("invalid hmm model")

// Model is a trained hidden Markov model with Gaussian emissions.
// Covars holds per-feature variances ("diag", n_components x n_features)
// or a single variance per state ("spherical", n_components x 1).
type Model struct {
	NComponents    int         `json:"n_components"`
	NFeatures      int         `json:"n_features"`
	CovarianceType string      `json:"covariance_type"`
	StartProb      []float64   `json:"startprob"`
	TransMat       [][]float64 `json:"transmat"`
	Means          [][]float64 `json:"means"`
	Covars         [][]float64 `json:"covars"`

	logStart    []float64
	logTrans    [][]float64
	variances   [][]float64
	logNormDens []float64
}

func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode hmm model: %w", err)
	}
	if err := m.Prepare(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Prepare validates the parameters and precomputes the log-space tables used by
// Score. It must be called once after the exported fields are set.
func (m *Model) Prepare() error {
	if m.CovarianceType == "" {
		m.CovarianceType = CovarianceDiag
	}
	if err := m.Validate(); err != nil {
		return err
	}

	n, d := m.NComponents, m.NFeatures
	m.logStart = make([]float64, n)
	m.logTrans = make([][]float64, n)
	m.variances = make([][]float64, n)
	m.logNormDens = make([]float64, n)
	for i := 0; i < n; i++ {
		m.logStart[i] = math.Log(m.StartProb[i])
		m.logTrans[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			m.logTrans[i][j] = math.Log(m.TransMat[i][j])
		}

		m.variances[i] = make([]float64, d)
		logDet := 0.0
		for f := 0; f < d; f++ {
			v := m.Covars[i][0]
			if m.CovarianceType == CovarianceDiag {
				v = m.Covars[i][f]
			}
			m.variances[i][f] = v
			logDet += math.Log(v)
		}
		m.logNormDens[i] = -0.5 * (float64(d)*math.Log(2*math.Pi) + logDet)
	}
	return nil
}

func (m *Model) Validate() error {
	n, d := m.NComponents, m.NFeatures
	if n <= 0 {
		return fmt.Errorf("%w: n_components must be positive, got %d", ErrInvalidModel, n)
	}
	if d <= 0 {
		return fmt.Errorf("%w: n_features must be positive, got %d", ErrInvalidModel, d)
	}
	if err := checkDistribution("startprob", m.StartProb, n); err != nil {
		return err
	}
	if len(m.TransMat) != n {
		return fmt.Errorf("%w: transmat has %d rows, expected %d", ErrInvalidModel, len(m.TransMat), n)
	}
	for i, row := range m.TransMat {
		if err := checkDistribution(fmt.Sprintf("transmat row %d", i), row, n); err != nil {
			return err
		}
	}
	if err := checkMatrix("means", m.Means, n, d); err != nil {
		return err
	}

	covarsWidth := d
	switch m.CovarianceType {
	case CovarianceDiag:
	case CovarianceSpherical:
		covarsWidth = 1
	default:
		return fmt.Errorf("%w: unsupported covariance type %q", ErrInvalidModel, m.CovarianceType)
	}
	if err := checkMatrix("covars", m.Covars, n, covarsWidth); err != nil {
		return err
	}
	for i, row := range m.Covars {
		for _, v := range row {
			if !(v > 0) || math.IsInf(v, 1) {
				return fmt.Errorf("%w: covars of state %d must be positive and finite", ErrInvalidModel, i)
			}
		}
	}
	return nil
}

func checkDistribution(name string, p []float64, n int) error {
	if len(p) != n {
		return fmt.Errorf("%w: %s has %d entries, expected %d", ErrInvalidModel, name, len(p), n)
	}
	sum := 0.0
	for _, v := range p {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s has negative or NaN probability", ErrInvalidModel, name)
		}
		sum += v
	}
	if math.Abs(sum-1) > stochasticTolerance {
		return fmt.Errorf("%w: %s sums to %g", ErrInvalidModel, name, sum)
	}
	return nil
}

func checkMatrix(name string, m [][]float64, rows, cols int) error {
	if len(m) != rows {
		return fmt.Errorf("%w: %s has %d rows, expected %d", ErrInvalidModel, name, len(m), rows)
	}
	for i, row := range m {
		if len(row) != cols {
			return fmt.Errorf("%w: %s row %d has %d columns, expected %d", ErrInvalidModel, name, i, len(row), cols)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s row %d is not finite", ErrInvalidModel, name, i)
			}
		}
	}
	return nil
}
