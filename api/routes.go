package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"text2phenotype.com/recognizer/pipeline"
)

// NewHandler serves the pipeline on "/" and the metrics of gatherer on "/metrics".
func NewHandler(ppln pipeline.Pipeline, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	apiRequest := &Request{Pipeline: ppln}
	mux.HandleFunc("/", apiRequest.ProcessData)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
