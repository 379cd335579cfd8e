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

// Package export ships rollup state off the node: to a Graphite
// (carbon) server via the pickle protocol, or into local whisper
// files.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/tgres/rollup/rollup"
)

// A Sink receives the state of a series right after each ingestion.
type Sink interface {
	Export(name string, ts time.Time, snap rollup.Snapshot) error
	Close() error
}

// Multi fans out to several sinks.
type Multi []Sink

func (m Multi) Export(name string, ts time.Time, snap rollup.Snapshot) error {
	var errs []string
	for _, s := range m {
		if err := s.Export(name, ts, snap); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("export %q: %s", name, strings.Join(errs, "; "))
	}
	return nil
}

func (m Multi) Close() error {
	var errs []string
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %s", strings.Join(errs, "; "))
	}
	return nil
}

// point is a single exported mean.
type point struct {
	path  string
	ts    time.Time
	value int16
}

// means returns the available means of snap as points named
// <prefix>.<name>.mean.<window>. Means that are not available are
// left out, a receiver would otherwise record the sentinel as data.
func means(prefix, name string, ts time.Time, snap rollup.Snapshot) []point {
	var result []point
	for _, w := range rollup.MeanWindows {
		if v, ok := snap.Mean(w).Int16(); ok {
			result = append(result, point{path: meanPath(prefix, name, w), ts: ts, value: v})
		}
	}
	return result
}

func meanPath(prefix, name string, w rollup.Window) string {
	path := name + ".mean." + w.String()
	if prefix != "" {
		path = prefix + "." + path
	}
	return path
}
