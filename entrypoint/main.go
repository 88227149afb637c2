package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"text2phenotype.com/recognizer/api"
	"text2phenotype.com/recognizer/logger"
	"text2phenotype.com/recognizer/metrics"
	"text2phenotype.com/recognizer/pipeline"
	"text2phenotype.com/recognizer/worker"
)

type Config struct {
	ConfigPath    string `envconfig:"REC_CONFIG_PATH" required:"true"`
	RestAPIActive bool   `envconfig:"REC_REST_API_ACTIVE" default:"false"`
	RestAPIPort   string `envconfig:"REC_REST_API_PORT" default:"10000"`
	WorkerActive  bool   `envconfig:"REC_WORKER_ACTIVE" default:"true"`
}

const (
	pipelineStartMaxRetries = 5
	retryDelay              = 5 * time.Second
	superviseFlag           = "supervise"
)

func main() {
	logger.SetupLogging()
	recLogger := logger.NewLogger("Main")
	fatalErrLogger := recLogger.Fatal().Caller()

	supervise := flag.Bool(superviseFlag, false, "run the service as a supervised child process")
	checkBanks := flag.Bool("check-banks", false, "load every configured model bank, log its fingerprint and exit")
	envFile := flag.String("env-file", ".env", "optional dotenv file read before the environment")
	flag.Parse()

	if *supervise {
		logger.WrapProcess(os.Args[0], childArgs(os.Args[1:])...)
		return
	}

	if err := loadEnvFile(*envFile); err != nil {
		fatalErrLogger.Err(err).Str("file", *envFile).Msg("Failed to read env file")
		os.Exit(1)
	}
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		fatalErrLogger.Err(err).Msg("Failed to read environment")
		os.Exit(1)
	}

	if *checkBanks {
		if err := runBankCheck(config, recLogger); err != nil {
			fatalErrLogger.Err(err).Msg("Model bank check failed")
			os.Exit(1)
		}
		recLogger.Info().Msg("Model banks loaded. Exit...")
		return
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	recognitionMetrics := metrics.NewRecognition()
	if err := recognitionMetrics.Register(registry); err != nil {
		fatalErrLogger.Err(err).Msg("Failed to register metrics")
		os.Exit(1)
	}

	//Load Pipeline
	pipelineChannel := make(chan pipeline.Pipeline)
	go func() {
		for retry := 0; retry < pipelineStartMaxRetries; retry++ {
			ppln, err := loadPipeline(config, recognitionMetrics, recLogger)
			if err != nil {
				recLogger.Err(err).Msgf("Failed to start recognition pipeline. Retrying in %s", retryDelay)
				time.Sleep(retryDelay)
				continue
			}
			recLogger.Info().Msg("Pipelines loaded")
			pipelineChannel <- ppln
			return
		}
		fatalErrLogger.Msgf("Could not start pipelines after %d retries, exiting", pipelineStartMaxRetries)
		os.Exit(1)
	}()

	// block until pipeline loads
	ppln := <-pipelineChannel

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.RestAPIActive {
		go func() {
			recLogger.Info().Msg("Starting API service")
			host := fmt.Sprintf(":%s", config.RestAPIPort)
			recLogger.Info().Msgf("REST API on %s", host)
			err := http.ListenAndServe(host, api.NewHandler(ppln, registry))
			fatalErrLogger.Err(err).Msg("REST API stopped with error")
			os.Exit(1)
		}()
	}

	if !config.WorkerActive {
		<-ctx.Done()
		recLogger.Info().Msg("Stopped")
		return
	}

	recLogger.Info().Msg("Start Recognizer Worker")
	for {
		rmqWorker, err := worker.New(ppln)
		if err != nil {
			recLogger.Fatal().Err(err).Msg("Could not initialize RMQ worker")
			os.Exit(1)
		}
		err = rmqWorker.StartWorker(ctx)
		if errors.Is(err, context.Canceled) {
			recLogger.Info().Msg("Worker stopped")
			return
		}
		if err != nil {
			recLogger.Err(err).Msgf("Worker returned with error. Launching new in %s", retryDelay)
			time.Sleep(retryDelay)
		}
	}
}
