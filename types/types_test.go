package types

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreRowOrderAndJSON(t *testing.T) {
	row := NewScoreRow(3)
	row.Set("zeta", -12.5)
	row.Set("alpha", Unscoreable)
	row.Set("mid", -3)
	row.Set("zeta", -11)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, row.Labels())
	assert.Equal(t, 3, row.Len())

	buf, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":-11,"alpha":null,"mid":-3}`, string(buf))

	var decoded ScoreRow
	require.NoError(t, json.Unmarshal(buf, &decoded))
	assert.Equal(t, row.Labels(), decoded.Labels())
	alpha, ok := decoded.Get("alpha")
	require.True(t, ok)
	assert.True(t, IsUnscoreable(alpha))
	zeta, _ := decoded.Get("zeta")
	assert.Equal(t, -11.0, zeta)
}

func TestScoreRowRejectsNonObject(t *testing.T) {
	var row ScoreRow
	assert.Error(t, json.Unmarshal([]byte(`[1, 2]`), &row))
	assert.Error(t, json.Unmarshal([]byte(`{"a": "x"}`), &row))
}

func TestScoreRowPositiveInfinityIsNotEncodable(t *testing.T) {
	row := NewScoreRow(1)
	row.Set("a", math.Inf(1))
	_, err := json.Marshal(row)
	assert.Error(t, err)
}

func TestZeroScoreRow(t *testing.T) {
	var row ScoreRow
	buf, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(buf))
	_, ok := row.Get("a")
	assert.False(t, ok)
	row.Set("a", 1)
	assert.Equal(t, 1, row.Len())
}

func TestRecognitionResultJSON(t *testing.T) {
	res := NewRecognitionResult(2)
	res.Probabilities[0].Set("A", -50)
	res.Probabilities[0].Set("B", -30)
	res.Guesses[0] = "B"
	res.Probabilities[1].Set("A", Unscoreable)
	res.Probabilities[1].Set("B", Unscoreable)

	buf, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"probabilities":[{"A":-50,"B":-30},{"A":null,"B":null}],"guesses":["B",null]}`,
		string(buf))

	var decoded RecognitionResult
	require.NoError(t, json.Unmarshal(buf, &decoded))
	if diff := cmp.Diff(res.Guesses, decoded.Guesses); diff != "" {
		t.Errorf("guesses mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, decoded.Guesses[1].IsNone())
	assert.True(t, decoded.Complete())
	assert.Equal(t, 2, decoded.Len())
}

func TestObservationSequenceValidate(t *testing.T) {
	valid := NewObservationSequence([][]float64{{1, 2}, {3, 4}, {5, 6}}, 1, 2)
	require.NoError(t, valid.Validate())
	assert.Equal(t, 2, valid.Dim())
	assert.Equal(t, 3, valid.Len())
	assert.Equal(t, []int{1, 2}, valid.Segments())

	unpacked := NewObservationSequence([][]float64{{1}, {2}})
	assert.Equal(t, []int{2}, unpacked.Segments())

	invalid := map[string]ObservationSequence{
		"empty":         NewObservationSequence(nil),
		"zero dim":      NewObservationSequence([][]float64{{}}),
		"ragged":        NewObservationSequence([][]float64{{1, 2}, {3}}),
		"short lengths": NewObservationSequence([][]float64{{1}, {2}}, 1),
		"zero length":   NewObservationSequence([][]float64{{1}, {2}}, 2, 0),
		"long segment":  NewObservationSequence([][]float64{{1}, {2}}, 3),
		"long tail":     NewObservationSequence([][]float64{{1}, {2}}, 1, 2),
		"wrapping sum":  NewObservationSequence([][]float64{{1}, {2}}, math.MaxInt64, math.MaxInt64, 4),
	}
	for name, seq := range invalid {
		assert.Error(t, seq.Validate(), name)
	}
	assert.ErrorIs(t, NewObservationSequence(nil).Validate(), ErrEmptySequence)
}

func TestTestSetPayload(t *testing.T) {
	var payload TestSetPayload
	body := `{"instances":[{"frames":[[1,2],[3,4]],"lengths":[2]},{"frames":[[0,0]]}]}`
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	require.Len(t, payload.Instances, 2)
	assert.Equal(t, []int{2}, payload.Instances[0].Lengths)
	assert.Nil(t, payload.Instances[1].Lengths)
}

func TestLoadConfigurations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"words.yaml": `
bank:
  manifest: banks/words/bank.yaml
workers: 4
deadline: 2s
features: [diagnostics]
`,
		"remote.yaml": `
bank:
  manifest: banks/remote/bank.yaml
  source: s3
pipeline: max_likelihood
`,
		"broken.yaml":     "bank: [",
		"wrong.yaml":      "pipeline: default_clinical\nbank:\n  manifest: x.yaml\n",
		"nomanifest.yaml": "workers: 1\n",
		"notes.txt":       "ignored",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}

	cfgs, err := LoadConfigurations(dir)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)

	remote, words := cfgs[0], cfgs[1]
	assert.Equal(t, "remote", remote.Name)
	assert.Equal(t, BankSourceS3, remote.Bank.Source)
	assert.Equal(t, "banks/remote/bank.yaml", remote.ManifestPath())

	assert.Equal(t, "words", words.Name)
	assert.Equal(t, MaxLikelihoodPipeline, words.Pipeline)
	assert.Equal(t, BankSourceLocal, words.Bank.Source)
	assert.Equal(t, 4, words.Workers)
	assert.Equal(t, 2*time.Second, words.Deadline)
	assert.True(t, words.CheckFeature(DiagnosticsFeature))
	assert.False(t, words.CheckFeature(ExclusiveFeature))
	assert.Equal(t, filepath.Join(dir, "banks/words/bank.yaml"), words.ManifestPath())

	_, err = LoadConfiguration(filepath.Join(dir, "wrong.yaml"))
	assert.ErrorIs(t, err, ErrWrongPipeline)

	_, err = LoadConfigurations(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
