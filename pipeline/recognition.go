package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"text2phenotype.com/recognizer/logger"
	"text2phenotype.com/recognizer/metrics"
	"text2phenotype.com/recognizer/modelbank"
	"text2phenotype.com/recognizer/recognizer"
	"text2phenotype.com/recognizer/types"
	"text2phenotype.com/recognizer/utils"
)

var (
	ErrUnknownConfiguration = errors.New("unknown configuration")
	ErrNoRemoteFetcher      = errors.New("bank stored in s3 but no s3 fetcher was given")
)

type RecognitionParams struct {
	Configurations []types.Configuration `json:"configurations"`
	// RemoteFetcher serves banks whose source is s3.
	RemoteFetcher modelbank.Fetcher `json:"-"`
	Metrics       *metrics.Recognition `json:"-"`
}

// LoadedConfiguration is a configuration together with the model bank it names.
type LoadedConfiguration struct {
	Config types.Configuration
	Bank   *modelbank.Bank
}

// LoadBanks loads the model bank of every configuration, in configuration order.
func LoadBanks(params RecognitionParams) ([]LoadedConfiguration, error) {
	loaded := make([]LoadedConfiguration, len(params.Configurations))
	for i, cfg := range params.Configurations {
		bank, err := loadBank(cfg, params.RemoteFetcher)
		if err != nil {
			return nil, fmt.Errorf("configuration %s: %w", cfg.Name, err)
		}
		loaded[i] = LoadedConfiguration{Config: cfg, Bank: bank}
	}
	return loaded, nil
}

func loadBank(cfg types.Configuration, remote modelbank.Fetcher) (*modelbank.Bank, error) {
	if cfg.Bank.Source == types.BankSourceS3 {
		if remote == nil {
			return nil, ErrNoRemoteFetcher
		}
		return modelbank.LoadFrom(remote, cfg.ManifestPath())
	}
	return modelbank.Load(cfg.ManifestPath())
}

func NewRecognition(params RecognitionParams) (Pipeline, error) {
	recLogger := logger.NewLogger("Recognition pipeline")
	errLogger := recLogger.With().Caller().Logger()
	recLogger.Info().
		Interface("params", params).
		Msg("Starting recognition pipeline (see parameters in 'params' field)")

	loaded, err := LoadBanks(params)
	if err != nil {
		errLogger.Err(err).Msg("Failed to load model banks")
		return nil, err
	}
	byName := make(map[string]LoadedConfiguration, len(loaded))
	for _, lc := range loaded {
		byName[lc.Config.Name] = lc
	}

	return func(request Request) <-chan string {
		responseChan := make(chan string, 1)
		pplnLog := recLogger.With().Str("tid", request.Tid).Logger()
		pplnLog.Info().
			Str("payload_hash", strconv.FormatUint(utils.HashString(request.Payload), 16)).
			Msg("Started recognition pipeline")

		go func() {
			defer close(responseChan)

			selected, err := selectConfigurations(loaded, byName, request.Configurations)
			if err != nil {
				pplnLog.Err(err).Msg("Rejected request")
				responseChan <- errorResponse(err)
				return
			}
			var payload types.TestSetPayload
			if err = json.Unmarshal([]byte(request.Payload), &payload); err != nil {
				pplnLog.Err(err).Msg("Failed to decode test set")
				responseChan <- errorResponse(fmt.Errorf("decode test set: %w", err))
				return
			}
			pplnLog.Info().Int("instances", len(payload.Instances)).Msg("Decoded test set")

			resultChannel := make(chan Result, len(selected))
			var wg sync.WaitGroup
			for _, lc := range selected {
				wg.Add(1)
				go func(lc LoadedConfiguration) {
					defer wg.Done()
					resultChannel <- recognize(lc, payload.Instances, params.Metrics)
				}(lc)
			}
			wg.Wait()
			close(resultChannel)

			response := make(map[string]interface{}, len(selected))
			for res := range resultChannel {
				pplnLog.Info().
					Str("config_name", res.ConfigName).
					Msg("Finished pipeline for configuration")
				response[res.ConfigName] = res.Data
			}

			buf, err := json.Marshal(response)
			if err != nil {
				pplnLog.Err(err).Caller().Msg("Failed to marshall response")
				responseChan <- errorResponse(fmt.Errorf("encode response: %w", err))
				return
			}
			pplnLog.Info().Msg("Finished recognition pipeline")
			responseChan <- string(buf)
		}()

		return responseChan
	}, nil
}

func selectConfigurations(
	loaded []LoadedConfiguration,
	byName map[string]LoadedConfiguration,
	names []string,
) ([]LoadedConfiguration, error) {
	if len(names) == 0 {
		return loaded, nil
	}
	selected := make([]LoadedConfiguration, 0, len(names))
	var unknown []string
	for _, name := range names {
		lc, ok := byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		selected = append(selected, lc)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConfiguration, strings.Join(unknown, ", "))
	}
	return selected, nil
}

func recognize(lc LoadedConfiguration, testSet []types.ObservationSequence, m *metrics.Recognition) Result {
	cfg := lc.Config
	ctx := context.Background()
	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}

	var observers multiObserver
	if m != nil {
		observers = append(observers, m.ForConfiguration(cfg.Name))
	}
	var diagnostics *failureCollector
	if cfg.CheckFeature(types.DiagnosticsFeature) {
		diagnostics = &failureCollector{}
		observers = append(observers, diagnostics)
	}
	opts := recognizer.Options{
		Workers:         cfg.Workers,
		ExclusiveModels: cfg.CheckFeature(types.ExclusiveFeature),
	}
	if len(observers) > 0 {
		opts.Observer = observers
	}

	started := time.Now()
	res, err := recognizer.RecognizeParallel(ctx, lc.Bank.Models, testSet, opts)
	if m != nil {
		m.ObserveDuration(cfg.Name, time.Since(started))
	}
	return newRecognitionResult(cfg.Name, lc.Bank, res, err, diagnostics)
}

type multiObserver []recognizer.Observer

func (observers multiObserver) ScoringFailed(instance int, label string, err error) {
	for _, o := range observers {
		o.ScoringFailed(instance, label, err)
	}
}

func (observers multiObserver) InstanceRecognized(instance int, guess types.Guess) {
	for _, o := range observers {
		o.InstanceRecognized(instance, guess)
	}
}

func errorResponse(err error) string {
	buf, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(buf)
}
