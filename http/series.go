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

// Package http provides HTTP functionality for querying rollup
// buffers as well as pushing samples into them.
package http

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/tgres/rollup/rollup"
)

// SeriesFinder is the read side of a registry.
type SeriesFinder interface {
	Get(name string) (*rollup.SyncBuffer, bool)
	Names() []string
}

type seriesJSON struct {
	Name     string                    `json:"name"`
	Count    uint64                    `json:"count"`
	Means    map[string]rollup.Value   `json:"means"`
	Segments map[string][]rollup.Value `json:"segments"`
	Data     []int16                   `json:"data"` // all segments, Sentinel for not available
}

func newSeriesJSON(name string, snap rollup.Snapshot) *seriesJSON {
	sj := &seriesJSON{
		Name:     name,
		Count:    snap.Count,
		Means:    make(map[string]rollup.Value, len(rollup.MeanWindows)),
		Segments: make(map[string][]rollup.Value, 3),
	}
	for _, w := range rollup.MeanWindows {
		sj.Means[w.String()] = snap.Mean(w)
	}
	for _, w := range []rollup.Window{rollup.Minute, rollup.FiveMinutes, rollup.Hour} {
		sj.Segments[w.String()] = snap.Segment(w)
	}
	for _, v := range snap.Segment(rollup.All) {
		sj.Data = append(sj.Data, v.Raw())
	}
	return sj
}

func recoverHandler(name string) {
	if rc := recover(); rc != nil {
		log.Printf("%s: Recovered (this request is dropped): %v", name, rc)
	}
}

// SeriesListHandler responds with a JSON list of series names.
func SeriesListHandler(sf SeriesFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer recoverHandler("SeriesListHandler")

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(sf.Names()); err != nil {
			log.Printf("SeriesListHandler: %v", err)
		}
	}
}

// seriesFromPath looks up the series named by whatever follows
// prefix in the URL path, responding with 404 if there is none.
func seriesFromPath(sf SeriesFinder, w http.ResponseWriter, r *http.Request, prefix string) (string, *rollup.SyncBuffer) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	b, ok := sf.Get(name)
	if name == "" || !ok {
		http.Error(w, fmt.Sprintf("series %q not found", name), http.StatusNotFound)
		return "", nil
	}
	return name, b
}

// SeriesHandler responds with the means and segments of the series
// named in the path (/series/<name>) as JSON.
func SeriesHandler(sf SeriesFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer recoverHandler("SeriesHandler")

		name, b := seriesFromPath(sf, w, r, "/series/")
		if b == nil {
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(newSeriesJSON(name, b.Snapshot())); err != nil {
			log.Printf("SeriesHandler: %v", err)
		}
	}
}
