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

// Package ingest exposes the HTTP surface that node-health reporters push
// observations to. Malformed payloads are dropped with a 400 and never reach
// the health store.
package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/trillian/monitoring"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/tomasen/realip"
	"k8s.io/klog/v2"

	"github.com/da-uptime/attestor-go/health"
)

// maxBodyBytes bounds an observation payload. Real payloads are tiny; this
// only guards against a confused or hostile reporter.
const maxBodyBytes = 4096

var (
	metricsOnce       sync.Once
	observationsTotal monitoring.Counter
)

func setupMetrics(mf monitoring.MetricFactory) {
	observationsTotal = mf.NewCounter("observations_total", "Number of received observations, by status", "status")
}

// observationRequest is the reporter's wire form. All fields are optional:
// a nil counter leaves the stored value untouched, and a missing timestamp
// means "now".
type observationRequest struct {
	Head         *int64 `json:"head"`
	SampledCount *int64 `json:"sampled_count"`
	At           *int64 `json:"at"`
}

// latestResponse is the GET /v1/latest wire form.
type latestResponse struct {
	Head         *int64 `json:"head"`
	SampledCount *int64 `json:"sampled_count"`
	LastUpdate   int64  `json:"last_update"`
}

// Server handles observation ingestion for one health store.
type Server struct {
	store   *health.Store
	timeNow func() time.Time
}

// NewServer creates a Server writing into store.
func NewServer(store *health.Store, mf monitoring.MetricFactory) *Server {
	if mf == nil {
		mf = monitoring.InertMetricFactory{}
	}
	metricsOnce.Do(func() { setupMetrics(mf) })
	return &Server{store: store, timeNow: time.Now}
}

// Handler returns the routed HTTP handler, wrapped for cross-origin
// reporters.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/v1/observations", s.handleObservation).Methods(http.MethodPost)
	router.HandleFunc("/v1/latest", s.handleLatest).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	return cors.AllowAll().Handler(router)
}

func (s *Server) handleObservation(w http.ResponseWriter, r *http.Request) {
	var req observationRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		observationsTotal.Inc("malformed")
		klog.V(1).Infof("Dropping malformed observation from %s: %v", realip.FromRequest(r), err)
		http.Error(w, fmt.Sprintf("failed to parse observation: %v", err), http.StatusBadRequest)
		return
	}

	at := s.timeNow()
	if req.At != nil {
		at = time.Unix(*req.At, 0)
	}
	s.store.RecordObservation(req.Head, req.SampledCount, at)
	observationsTotal.Inc("ok")
	klog.V(2).Infof("Recorded observation from %s", realip.FromRequest(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	obs, ok := s.store.Latest()
	if !ok {
		http.Error(w, "no observations recorded", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(latestResponse{
		Head:         obs.Head,
		SampledCount: obs.SampledCount,
		LastUpdate:   obs.LastUpdate.Unix(),
	}); err != nil {
		klog.Warningf("Failed to write latest response: %v", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if _, err := w.Write([]byte("ok")); err != nil {
		klog.Warningf("Failed to write healthz response: %v", err)
	}
}
