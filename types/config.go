package types

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
	"text2phenotype.com/recognizer/logger"
)

const (
	BankSourceLocal = "local"
	BankSourceS3    = "s3"

	// pipeline type
	MaxLikelihoodPipeline = "max_likelihood"

	// features
	DiagnosticsFeature = "diagnostics"
	ExclusiveFeature   = "exclusive_models"
)

var ErrWrongPipeline = errors.New("wrong pipeline type")

type BankConfig struct {
	Manifest string `yaml:"manifest" json:"manifest"`
	Source   string `yaml:"source" json:"source"`
}

type Configuration struct {
	Name     string        `json:"name"`
	FilePath string        `json:"file_path"`
	Bank     BankConfig    `yaml:"bank" json:"bank"`
	Pipeline string        `yaml:"pipeline" json:"pipeline"`
	Workers  int           `yaml:"workers" json:"workers"`
	Deadline time.Duration `yaml:"deadline" json:"deadline"`
	Features []string      `yaml:"features" json:"features"`
}

func (cfg Configuration) CheckFeature(featureName string) bool {
	for _, feat := range cfg.Features {
		if feat == featureName {
			return true
		}
	}

	return false
}

// ManifestPath resolves a relative local manifest against the configuration file's directory.
func (cfg Configuration) ManifestPath() string {
	if cfg.Bank.Source == BankSourceS3 || path.IsAbs(cfg.Bank.Manifest) || cfg.FilePath == "" {
		return cfg.Bank.Manifest
	}
	return path.Join(path.Dir(cfg.FilePath), cfg.Bank.Manifest)
}

func (cfg *Configuration) applyDefaults() {
	if cfg.Pipeline == "" {
		cfg.Pipeline = MaxLikelihoodPipeline
	}
	if cfg.Bank.Source == "" {
		cfg.Bank.Source = BankSourceLocal
	}
}

func (cfg Configuration) validate() error {
	if cfg.Pipeline != MaxLikelihoodPipeline {
		return fmt.Errorf("%w: %q", ErrWrongPipeline, cfg.Pipeline)
	}
	if cfg.Bank.Source != BankSourceLocal && cfg.Bank.Source != BankSourceS3 {
		return fmt.Errorf("unknown bank source %q", cfg.Bank.Source)
	}
	if cfg.Bank.Manifest == "" {
		return errors.New("bank manifest is not set")
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("negative workers count %d", cfg.Workers)
	}
	if cfg.Deadline < 0 {
		return fmt.Errorf("negative deadline %s", cfg.Deadline)
	}
	return nil
}

func LoadConfiguration(filePath string) (Configuration, error) {
	cfg := Configuration{
		Name:     strings.TrimSuffix(path.Base(filePath), ".yaml"),
		FilePath: filePath,
	}
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filePath, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("configuration %s: %w", cfg.Name, err)
	}
	return cfg, nil
}

// LoadConfigurations reads every *.yaml file of dirPath. Files that fail to parse
// or validate are logged and skipped. The result is sorted by name.
func LoadConfigurations(dirPath string) ([]Configuration, error) {
	recLogger := logger.NewLogger("LoadConfigurations")

	files, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	configChan := make(chan Configuration, len(files))
	for _, f := range files {
		// Skip dirs and non-yaml files
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
			continue
		}

		wg.Add(1)
		go func(file os.DirEntry) {
			defer wg.Done()
			cfg, err := LoadConfiguration(path.Join(dirPath, file.Name()))
			if err != nil {
				recLogger.Err(err).Str("file", file.Name()).Msg("Skipping configuration")
				return
			}
			configChan <- cfg
		}(f)
	}

	go func() {
		wg.Wait()
		close(configChan)
	}()

	configs := make([]Configuration, 0, len(files))
	for cfg := range configChan {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Name < configs[j].Name
	})
	return configs, nil
}
