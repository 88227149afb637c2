package hmm

import (
	"math"

	"text2phenotype.com/recognizer/recognizer"
	"text2phenotype.com/recognizer/types"
)

// Score returns the log-likelihood of seq, summed over its packed segments.
// The model is only read, so Score is safe for concurrent use.
func (m *Model) Score(seq types.ObservationSequence) (float64, error) {
	if m.logStart == nil {
		return 0, recognizer.ScoringErrorf("model is not prepared")
	}
	if err := seq.Validate(); err != nil {
		return 0, recognizer.NewScoringError("malformed sequence", err)
	}
	if seq.Dim() != m.NFeatures {
		return 0, recognizer.ScoringErrorf(
			"sequence dimension %d does not match model dimension %d", seq.Dim(), m.NFeatures)
	}

	logProb := 0.0
	start := 0
	for _, length := range seq.Segments() {
		logProb += m.forward(seq.Frames[start : start+length])
		start += length
	}
	if math.IsNaN(logProb) || math.IsInf(logProb, 0) {
		return 0, recognizer.ScoringErrorf("log-likelihood is not finite (%g)", logProb)
	}
	return logProb, nil
}

// forward runs the forward algorithm in log space over one segment.
func (m *Model) forward(frames [][]float64) float64 {
	n := m.NComponents
	alpha := make([]float64, n)
	next := make([]float64, n)
	terms := make([]float64, n)

	for j := 0; j < n; j++ {
		alpha[j] = m.logStart[j] + m.logEmission(j, frames[0])
	}
	for t := 1; t < len(frames); t++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				terms[i] = alpha[i] + m.logTrans[i][j]
			}
			next[j] = logSumExp(terms) + m.logEmission(j, frames[t])
		}
		alpha, next = next, alpha
	}
	return logSumExp(alpha)
}

func (m *Model) logEmission(state int, x []float64) float64 {
	mean := m.Means[state]
	variance := m.variances[state]
	sq := 0.0
	for f, v := range x {
		diff := v - mean[f]
		sq += diff * diff / variance[f]
	}
	return m.logNormDens[state] - 0.5*sq
}

func logSumExp(values []float64) float64 {
	max := math.Inf(-1)
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	if math.IsInf(max, 0) {
		return max
	}
	sum := 0.0
	for _, v := range values {
		sum += math.Exp(v - max)
	}
	return max + math.Log(sum)
}
