package modelbank

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
	"text2phenotype.com/recognizer/hmm"
	"text2phenotype.com/recognizer/logger"
	"text2phenotype.com/recognizer/recognizer"
	"text2phenotype.com/recognizer/utils"
)

const KindGaussianHMM = "gaussian_hmm"

var ErrUnknownKind = errors.New("unknown model kind")

// Fetcher reads a model bank object by key. The S3 client implements it; DirFetcher
// reads from the local file system.
type Fetcher interface {
	Download(key string) ([]byte, error)
}

type DirFetcher string

func (dir DirFetcher) Download(key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(string(dir), filepath.FromSlash(key)))
}

type ModelEntry struct {
	Label string `yaml:"label" json:"label"`
	File  string `yaml:"file" json:"file"`
	Kind  string `yaml:"kind" json:"kind"`
}

// Manifest lists the models of a bank. The order of Models is the bank order and
// therefore decides ties between equal scores.
type Manifest struct {
	Name   string       `yaml:"name" json:"name"`
	Models []ModelEntry `yaml:"models" json:"models"`
}

type Bank struct {
	Name        string
	Models      *recognizer.ModelBank
	Fingerprint uint64
}

func (bank Bank) FingerprintHex() string {
	return strconv.FormatUint(bank.Fingerprint, 16)
}

// Load reads a manifest and its model files from the local file system.
func Load(manifestPath string) (*Bank, error) {
	dir, file := filepath.Split(manifestPath)
	if dir == "" {
		dir = "."
	}
	return LoadFrom(DirFetcher(dir), file)
}

// LoadFrom reads the manifest stored under manifestKey and every model it lists.
// Model files are resolved relative to the manifest key.
func LoadFrom(fetcher Fetcher, manifestKey string) (*Bank, error) {
	bankLogger := logger.NewLogger("Model bank")

	raw, err := fetcher.Download(manifestKey)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest %s: %w", manifestKey, err)
	}
	var manifest Manifest
	if err = yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", manifestKey, err)
	}
	if manifest.Name == "" {
		manifest.Name = path.Base(manifestKey)
	}

	blobs, err := fetchModels(fetcher, path.Dir(manifestKey), manifest.Models)
	if err != nil {
		return nil, err
	}

	hasher := utils.NewHasher()
	models := recognizer.NewModelBank()
	for i, entry := range manifest.Models {
		scorer, err := decodeModel(entry, blobs[i])
		if err != nil {
			return nil, fmt.Errorf("model %q of bank %s: %w", entry.Label, manifest.Name, err)
		}
		if err = models.Add(entry.Label, scorer); err != nil {
			return nil, fmt.Errorf("bank %s: %w", manifest.Name, err)
		}
		hasher.Add([]byte(entry.Label))
		hasher.Add(blobs[i])
	}

	bank := &Bank{
		Name:        manifest.Name,
		Models:      models,
		Fingerprint: hasher.Sum64(),
	}
	if models.Len() == 0 {
		bankLogger.Warn().Str("bank", bank.Name).Msg("Model bank has no models, every instance will get no guess")
	}
	bankLogger.Info().
		Str("bank", bank.Name).
		Int("models", models.Len()).
		Str("fingerprint", bank.FingerprintHex()).
		Msg("Loaded model bank")
	return bank, nil
}

func fetchModels(fetcher Fetcher, baseKey string, entries []ModelEntry) ([][]byte, error) {
	blobs := make([][]byte, len(entries))
	errs := make([]error, len(entries))
	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry ModelEntry) {
			defer wg.Done()
			key := entry.File
			if !path.IsAbs(key) {
				key = path.Join(baseKey, key)
			}
			blobs[i], errs[i] = fetcher.Download(key)
			if errs[i] != nil {
				errs[i] = fmt.Errorf("fetch model %q from %s: %w", entry.Label, key, errs[i])
			}
		}(i, entry)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return blobs, nil
}

func decodeModel(entry ModelEntry, blob []byte) (recognizer.Scorer, error) {
	switch entry.Kind {
	case "", KindGaussianHMM:
		return hmm.Decode(bytes.NewReader(blob))
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownKind, entry.Kind)
}
