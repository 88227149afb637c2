package s3client

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDownloader struct {
	keys []string
	fail bool
}

func (d *recordingDownloader) Download(key string) ([]byte, error) {
	d.keys = append(d.keys, key)
	if d.fail {
		return nil, errors.New("no such key")
	}
	return []byte(key), nil
}

func TestPrefixed(t *testing.T) {
	d := &recordingDownloader{}
	body, err := Prefixed{Downloader: d, Prefix: "models/banks"}.Download("words/bank.yaml")
	require.NoError(t, err)
	assert.Equal(t, "models/banks/words/bank.yaml", string(body))

	_, err = Prefixed{Downloader: d}.Download("words/bank.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"models/banks/words/bank.yaml", "words/bank.yaml"}, d.keys)

	_, err = Prefixed{Downloader: &recordingDownloader{fail: true}, Prefix: "x"}.Download("y")
	assert.Error(t, err)
}

func TestS3LoggerForwardsToZerolog(t *testing.T) {
	l := getLogger(clientLogger)
	assert.NotPanics(t, func() { l.Log("DEBUG", "request", 1) })
}
