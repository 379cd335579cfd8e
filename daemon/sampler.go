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

package daemon

import (
	"context"
	"log"
	"time"

	"github.com/tgres/rollup/export"
	"github.com/tgres/rollup/registry"
	"github.com/tgres/rollup/rollup"
	"github.com/tgres/rollup/sensor"
)

// seriesSampler is a configured series and where its samples come
// from.
type seriesSampler struct {
	name string
	sensor.Sampler
}

type ingester interface {
	Ingest(name string, v int16) (string, rollup.Snapshot, error)
}

var newSampler = sensor.New

var createSamplers = func(cfg *Config) ([]seriesSampler, error) {
	result := make([]seriesSampler, 0, len(cfg.Series))
	for _, s := range cfg.Series {
		smp, err := newSampler(s.Source, s.Sensor, s.Scale)
		if err != nil {
			return nil, err
		}
		result = append(result, seriesSampler{name: s.Name, Sampler: smp})
	}
	return result, nil
}

var createSinks = func(cfg *Config) (export.Multi, error) {
	var sinks export.Multi
	if cfg.CarbonAddr != "" {
		sinks = append(sinks, export.NewCarbon(processListenSpec(cfg.CarbonAddr), cfg.CarbonPrefix, cfg.CarbonRate))
	}
	if cfg.WhisperDir != "" {
		w, err := export.NewWhisper(cfg.WhisperDir, cfg.MaxSeries*len(rollup.MeanWindows))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, w)
	}
	return sinks, nil
}

// sampleAll takes one sample of every series, ingests it and exports
// the result. A series whose sample fails skips this minute.
func sampleAll(ts time.Time, samplers []seriesSampler, ing ingester, sink export.Sink) {
	for _, s := range samplers {
		v, err := s.Sample()
		if err != nil {
			log.Printf("sampleAll: %s: %v (sample skipped)", s.name, err)
			continue
		}
		name, snap, err := ing.Ingest(s.name, v)
		if err != nil {
			log.Printf("sampleAll: %s: %v", s.name, err)
			continue
		}
		if sink != nil {
			if err := sink.Export(name, ts, snap); err != nil {
				log.Printf("sampleAll: %v", err)
			}
		}
	}
}

// sampleLoop calls tick once every interval until ctx is done.
func sampleLoop(ctx context.Context, interval time.Duration, tick func(time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ts := <-ticker.C:
			tick(ts)
		}
	}
}

var startSampling = func(ctx context.Context, cfg *Config, samplers []seriesSampler, reg *registry.Registry, sink export.Sink) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("Sampling %d series every %v.", len(samplers), cfg.SampleInterval.Duration)
		sampleLoop(ctx, cfg.SampleInterval.Duration, func(ts time.Time) {
			sampleAll(ts, samplers, reg, sink)
		})
		log.Printf("Sampling stopped.")
	}()
	return done
}
