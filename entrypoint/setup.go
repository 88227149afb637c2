package main

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"text2phenotype.com/recognizer/metrics"
	"text2phenotype.com/recognizer/pipeline"
	"text2phenotype.com/recognizer/s3client"
	"text2phenotype.com/recognizer/types"
)

// childArgs drops the supervise flag so the supervised child runs the service.
func childArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		name := strings.TrimLeft(arg, "-")
		if strings.HasPrefix(arg, "-") && (name == superviseFlag || strings.HasPrefix(name, superviseFlag+"=")) {
			continue
		}
		out = append(out, arg)
	}
	return out
}

// loadEnvFile reads file into the environment without overriding variables that
// are already set. A missing file is not an error.
func loadEnvFile(file string) error {
	if file == "" {
		return nil
	}
	err := godotenv.Load(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func needsRemoteBanks(cfgs []types.Configuration) bool {
	for _, cfg := range cfgs {
		if cfg.Bank.Source == types.BankSourceS3 {
			return true
		}
	}
	return false
}

// recognitionParams loads the configurations and, when a bank lives in S3, opens
// the S3 client serving it. The returned close func releases that client.
func recognitionParams(config Config, m *metrics.Recognition, recLogger zerolog.Logger) (pipeline.RecognitionParams, func(), error) {
	cfgs, err := types.LoadConfigurations(config.ConfigPath)
	if err != nil {
		return pipeline.RecognitionParams{}, nil, err
	}
	recLogger.Info().Msgf("Loaded %d configurations", len(cfgs))
	params := pipeline.RecognitionParams{Configurations: cfgs, Metrics: m}
	closeFunc := func() {}
	if needsRemoteBanks(cfgs) {
		client, err := s3client.New()
		if err != nil {
			return params, nil, err
		}
		params.RemoteFetcher = client.BankFetcher()
		closeFunc = client.Close
	}
	return params, closeFunc, nil
}

func loadPipeline(config Config, m *metrics.Recognition, recLogger zerolog.Logger) (pipeline.Pipeline, error) {
	params, closeFunc, err := recognitionParams(config, m, recLogger)
	if err != nil {
		return nil, err
	}
	defer closeFunc()
	recLogger.Info().Msg("Starting pipelines loading")
	return pipeline.NewRecognition(params)
}

func runBankCheck(config Config, recLogger zerolog.Logger) error {
	params, closeFunc, err := recognitionParams(config, nil, recLogger)
	if err != nil {
		return err
	}
	defer closeFunc()
	loaded, err := pipeline.LoadBanks(params)
	if err != nil {
		return err
	}
	for _, lc := range loaded {
		recLogger.Info().
			Str("config_name", lc.Config.Name).
			Str("bank", lc.Bank.Name).
			Strs("labels", lc.Bank.Models.Labels()).
			Str("fingerprint", lc.Bank.FingerprintHex()).
			Msg("Model bank is valid")
	}
	return nil
}
