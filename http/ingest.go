//
// Copyright 2017 Gregory Trubetskoy. All Rights Reserved.
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

package http

import (
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/tgres/rollup/rollup"
	"golang.org/x/time/rate"
)

// Ingester is the write side of a registry.
type Ingester interface {
	Ingest(name string, v int16) (string, rollup.Snapshot, error)
}

// Exporter receives every pushed sample's resulting state.
type Exporter interface {
	Export(name string, ts time.Time, snap rollup.Snapshot) error
}

// IngestHandler accepts a sample for a series:
//
//	/ingest?name=cellar.temp&value=215
//
// The pusher is expected to do this once a minute per series, the
// buffer has no notion of time. A nil limiter means no rate limit, a
// nil exporter means pushed samples are not exported.
func IngestHandler(ing Ingester, limiter *rate.Limiter, exp Exporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer recoverHandler("IngestHandler")

		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if limiter != nil && !limiter.Allow() {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		if err := r.ParseForm(); err != nil {
			log.Printf("IngestHandler: error from ParseForm(): %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		v, err := parseSample(r.Form.Get("value"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		name, snap, err := ing.Ingest(r.Form.Get("name"), v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if exp != nil {
			if err := exp.Export(name, time.Now(), snap); err != nil {
				log.Printf("IngestHandler: %v", err)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// parseSample accepts any int16 but the one reserved for "not
// available" in raw exports.
func parseSample(s string) (int16, error) {
	n, err := strconv.ParseInt(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: must be an integer between %d and %d", s, math.MinInt16+1, math.MaxInt16)
	}
	if n == rollup.Sentinel {
		return 0, fmt.Errorf("invalid value %q: %d is reserved", s, n)
	}
	return int16(n), nil
}
