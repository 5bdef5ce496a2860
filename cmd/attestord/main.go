// Copyright 2025 The attestor-go Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// The attestord binary runs the liveness attestation pipeline: it ingests
// node-health observations over HTTP, samples them on a fixed tick, rolls
// sampling windows into batch attestations and posts the results to the
// configured ledger backend.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/trillian/monitoring/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/da-uptime/attestor-go/config"
	"github.com/da-uptime/attestor-go/ingest"
	"github.com/da-uptime/attestor-go/pipeline"
)

// Flags.
var (
	configPath      = flag.String("config", "", "File holding the pipeline config in YAML format; defaults apply if unset")
	httpEndpoint    = flag.String("http_endpoint", "localhost:8571", "Endpoint for the observation ingestion HTTP server (host:port)")
	metricsEndpoint = flag.String("metrics_endpoint", "", "Endpoint for serving metrics; if left empty, metrics will be visible on --http_endpoint")
	shutdownGrace   = flag.Duration("shutdown_grace", 15*time.Second, "How long to wait for in-flight proving and posting work on shutdown")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.FromFile(*configPath)
		if err != nil {
			klog.Exitf("Failed to read config: %v", err)
		}
	} else if err := cfg.Validate(); err != nil {
		klog.Exitf("Invalid default config: %v", err)
	}

	klog.CopyStandardLogTo("WARNING")
	klog.Info("**** Attestor Starting ****")

	mf := prometheus.MetricFactory{}
	p, err := pipeline.New(ctx, cfg, mf)
	if err != nil {
		klog.Exitf("Failed to assemble pipeline: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", ingest.NewServer(p.Store(), mf).Handler())

	metricsAt := *metricsEndpoint
	if metricsAt == "" || metricsAt == *httpEndpoint {
		mux.Handle("/metrics", promhttp.Handler())
	} else {
		// Run a separate handler for metrics.
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			metricsServer := http.Server{Addr: metricsAt, Handler: metricsMux}
			err := metricsServer.ListenAndServe()
			klog.Warningf("Metrics server exited: %v", err)
		}()
	}

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := p.Run(ctx, *shutdownGrace); err != nil {
			klog.Errorf("Pipeline exited: %v", err)
		}
	}()

	// Bring up the HTTP server and serve until we get a signal not to.
	srv := http.Server{Addr: *httpEndpoint, Handler: mux}
	shutdownWG := new(sync.WaitGroup)
	go awaitSignal(func() {
		shutdownWG.Add(1)
		defer shutdownWG.Done()
		cancel()
		// Allow pending ingestion requests to finish, then terminate any
		// stragglers.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownGrace)
		defer shutdownCancel()
		klog.Info("Shutting down HTTP server...")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			klog.Warningf("HTTP server shutdown: %v", err)
		}
		klog.Info("HTTP server shutdown")
	})

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		klog.Warningf("Server exited: %v", err)
	}
	// Wait will only block if the function passed to awaitSignal was called,
	// in which case it'll block until the HTTP server has gracefully shutdown.
	shutdownWG.Wait()
	<-pipelineDone
	klog.Flush()
}

// awaitSignal waits for standard termination signals, then runs the given
// function; it should be run as a separate goroutine.
func awaitSignal(doneFn func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigs
	klog.Warningf("Signal received: %v", sig)
	klog.Flush()

	doneFn()
}
