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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

const testConfig = `
pid-file = "run/rollup.pid"
log-cycle-interval = "24h"
sample-interval = "1min"
http-listen-spec = "0.0.0.0:8088"
max-series = 16
ingest-rate = 10.5
carbon-addr = "127.0.0.1:2004"
whisper-dir = "wsp"

[[series]]
name = "cpu total"
source = "cpu"

[[series]]
name = "cellar"
source = "temp"
sensor = "coretemp_core0_input"
scale = 10.0
`

func Test_Config_decode(t *testing.T) {
	var cfg Config
	if _, err := toml.Decode(testConfig, &cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.SampleInterval.Duration != time.Minute {
		t.Errorf("sample-interval: %v", cfg.SampleInterval.Duration)
	}
	if cfg.LogCycle.Duration != 24*time.Hour {
		t.Errorf("log-cycle-interval: %v", cfg.LogCycle.Duration)
	}
	if cfg.MaxSeries != 16 || cfg.IngestRate != 10.5 {
		t.Errorf("max-series %d, ingest-rate %v", cfg.MaxSeries, cfg.IngestRate)
	}
	if len(cfg.Series) != 2 {
		t.Fatalf("len(Series) = %d", len(cfg.Series))
	}
	if s := cfg.Series[1]; s.Name != "cellar" || s.Source != "temp" || s.Sensor != "coretemp_core0_input" || s.Scale != 10 {
		t.Errorf("Series[1] = %+v", s)
	}
}

func Test_processConfig(t *testing.T) {
	os.Unsetenv("ROLLUP_LOG")
	wd := t.TempDir()

	var cfg Config
	if _, err := toml.Decode(testConfig, &cfg); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := processConfig(&cfg, wd); err != nil {
		t.Fatalf("processConfig: %v", err)
	}
	if cfg.PidPath != filepath.Join(wd, "run", "rollup.pid") {
		t.Errorf("PidPath = %q", cfg.PidPath)
	}
	if _, err := os.Stat(filepath.Join(wd, "run")); err != nil {
		t.Errorf("pid directory not created: %v", err)
	}
	if cfg.WhisperDir != filepath.Join(wd, "wsp") {
		t.Errorf("WhisperDir = %q", cfg.WhisperDir)
	}
	if cfg.CarbonPrefix != "rollup" || cfg.CarbonRate != 1 {
		t.Errorf("carbon defaults: %q %d", cfg.CarbonPrefix, cfg.CarbonRate)
	}
	if cfg.Series[0].Name != "cpu_total" || cfg.Series[0].Scale != 1 {
		t.Errorf("Series[0] = %+v", cfg.Series[0])
	}
}

func Test_processConfig_defaults(t *testing.T) {
	os.Unsetenv("ROLLUP_LOG")
	cfg := Config{PidPath: "/tmp/rollup.pid"}
	if err := processConfig(&cfg, ""); err != nil {
		t.Fatalf("processConfig: %v", err)
	}
	if cfg.SampleInterval.Duration != time.Minute {
		t.Errorf("default sample-interval: %v", cfg.SampleInterval.Duration)
	}
	if cfg.MaxSeries != defaultMaxSeries {
		t.Errorf("default max-series: %d", cfg.MaxSeries)
	}
}

func Test_processConfig_errors(t *testing.T) {
	os.Unsetenv("ROLLUP_LOG")
	for i, cfg := range []Config{
		{},
		{PidPath: "relative.pid"},
		{PidPath: "/tmp/rollup.pid", LogPath: "/tmp/rollup.log"},
		{PidPath: "/tmp/rollup.pid", SampleInterval: duration{-time.Second}},
		{PidPath: "/tmp/rollup.pid", MaxSeries: -1},
		{PidPath: "/tmp/rollup.pid", MaxSeries: 1, Series: []ConfigSeries{{Name: "a", Source: "cpu"}, {Name: "b", Source: "cpu"}}},
		{PidPath: "/tmp/rollup.pid", IngestRate: -1},
		{PidPath: "/tmp/rollup.pid", CarbonAddr: "localhost:2004", CarbonRate: -1},
		{PidPath: "/tmp/rollup.pid", WhisperDir: "relative"},
		{PidPath: "/tmp/rollup.pid", Series: []ConfigSeries{{Name: "a", Source: "cpu"}, {Name: "a", Source: "mem"}}},
		{PidPath: "/tmp/rollup.pid", Series: []ConfigSeries{{Name: "!!", Source: "cpu"}}},
		{PidPath: "/tmp/rollup.pid", Series: []ConfigSeries{{Name: "a", Source: "bogus"}}},
		{PidPath: "/tmp/rollup.pid", Series: []ConfigSeries{{Name: "a", Source: "temp"}}},
	} {
		cfg := cfg
		if err := processConfig(&cfg, ""); err == nil {
			t.Errorf("case %d: expected error for %+v", i, cfg)
		}
	}
}

func Test_processListenSpec(t *testing.T) {
	defer os.Unsetenv("ROLLUP_BIND")
	os.Setenv("ROLLUP_BIND", "10.0.0.1")
	if s := processListenSpec("0.0.0.0:8088"); s != "10.0.0.1:8088" {
		t.Errorf("processListenSpec = %q", s)
	}
	os.Unsetenv("ROLLUP_BIND")
	if s := processListenSpec("0.0.0.0:8088"); s != "0.0.0.0:8088" {
		t.Errorf("processListenSpec = %q", s)
	}
}

func Test_readConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollup.conf")
	if err := os.WriteFile(path, []byte(testConfig), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := readConfig(path)
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if cfg.HttpListenSpec != "0.0.0.0:8088" {
		t.Errorf("HttpListenSpec = %q", cfg.HttpListenSpec)
	}
	if _, err := readConfig(path + ".missing"); err == nil {
		t.Errorf("readConfig of a missing file: no error")
	}
}
