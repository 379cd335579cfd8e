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
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tgres/rollup/misc"
	"github.com/tgres/rollup/sensor"
)

type Config struct { // Needs to be exported for TOML to work
	PidPath        string   `toml:"pid-file"`
	LogPath        string   `toml:"log-file"`
	LogCycle       duration `toml:"log-cycle-interval"`
	SampleInterval duration `toml:"sample-interval"`
	HttpListenSpec string   `toml:"http-listen-spec"`

	GraphiteTextListenSpec   string `toml:"graphite-text-listen-spec"`
	GraphiteUdpListenSpec    string `toml:"graphite-udp-listen-spec"`
	GraphitePickleListenSpec string `toml:"graphite-pickle-listen-spec"`

	MaxSeries    int            `toml:"max-series"`
	IngestRate   float64        `toml:"ingest-rate"`
	CarbonAddr   string         `toml:"carbon-addr"`
	CarbonPrefix string         `toml:"carbon-prefix"`
	CarbonRate   int            `toml:"carbon-rate"`
	WhisperDir   string         `toml:"whisper-dir"`
	Series       []ConfigSeries `toml:"series"`
}

// ConfigSeries is a series sampled by the daemon itself. Needs to be
// exported for TOML.
type ConfigSeries struct {
	Name   string
	Source string
	Sensor string
	Scale  float64
}

type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = misc.BetterParseDuration(string(text))
	return err
}

const (
	defaultSampleInterval = time.Minute
	defaultMaxSeries      = 64
	defaultCarbonPrefix   = "rollup"
	defaultCarbonRate     = 1
)

var readConfig = func(cfgPath string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// absPath makes path absolute relative to the working directory wd
// and creates its directory.
func absPath(setting, path, wd string) (string, error) {
	if !filepath.IsAbs(path) {
		if wd == "" {
			return "", fmt.Errorf("%s must be absolute path if working directory cannot be determined", setting)
		}
		path = filepath.Join(wd, path)
	}
	dir, _ := filepath.Split(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("Unable to create directory: '%s' (%v).", dir, err)
	}
	return path, nil
}

func (c *Config) processConfigPidFile(wd string) (err error) {
	if c.PidPath == "" {
		return fmt.Errorf("pid-file setting empty")
	}
	c.PidPath, err = absPath("pid-file", c.PidPath, wd)
	return err
}

func (c *Config) processConfigLogFile(wd string) (err error) {
	if os.Getenv("ROLLUP_LOG") != "" {
		c.LogPath = os.Getenv("ROLLUP_LOG")
	}
	if c.LogPath == "" {
		log.Printf("log-file setting empty, logging to stderr.")
		return nil
	}
	if c.LogPath, err = absPath("log-file", c.LogPath, wd); err != nil {
		return err
	}
	log.Printf("Logs will be written to '%s'.", c.LogPath)
	return nil
}

func (c *Config) processConfigLogCycleInterval() error {
	if c.LogPath == "" {
		return nil
	}
	if c.LogCycle.Duration == 0 {
		return fmt.Errorf("log-cycle-interval setting empty")
	}
	log.Printf("Will cycle logs every %v (log-cycle-interval).", c.LogCycle.Duration)
	return nil
}

func (c *Config) processSampleInterval() error {
	if c.SampleInterval.Duration == 0 {
		c.SampleInterval.Duration = defaultSampleInterval
	} else if c.SampleInterval.Duration < 0 {
		return fmt.Errorf("sample-interval must be positive")
	}
	if c.SampleInterval.Duration != time.Minute {
		log.Printf("WARNING: sample-interval is %v, windows are no longer 5 minutes, 1 hour and 24 hours.", c.SampleInterval.Duration)
	}
	log.Printf("Will sample every %v (sample-interval).", c.SampleInterval.Duration)
	return nil
}

func (c *Config) processMaxSeries() error {
	if c.MaxSeries == 0 {
		log.Printf("max-series unspecified, defaulting to %d.", defaultMaxSeries)
		c.MaxSeries = defaultMaxSeries
	}
	if c.MaxSeries < 0 {
		return fmt.Errorf("max-series must be positive")
	}
	if c.MaxSeries < len(c.Series) {
		return fmt.Errorf("max-series (%d) is less than the number of [[series]] (%d)", c.MaxSeries, len(c.Series))
	}
	log.Printf("Will keep at most %d series (max-series).", c.MaxSeries)
	return nil
}

func (c *Config) processIngestRate() error {
	if c.IngestRate < 0 {
		return fmt.Errorf("ingest-rate must not be negative")
	}
	if c.IngestRate == 0 {
		log.Printf("Ingest rate is unlimited (ingest-rate).")
	} else {
		log.Printf("Ingest rate is limited to %v per second (ingest-rate).", c.IngestRate)
	}
	return nil
}

func (c *Config) processCarbon() error {
	if c.CarbonAddr == "" {
		log.Printf("carbon-addr is empty, not exporting to carbon.")
		return nil
	}
	if c.CarbonPrefix == "" {
		c.CarbonPrefix = defaultCarbonPrefix
	}
	if c.CarbonRate == 0 {
		c.CarbonRate = defaultCarbonRate
	} else if c.CarbonRate < 0 {
		return fmt.Errorf("carbon-rate must be positive")
	}
	log.Printf("Exporting to carbon at %s as %s.* at most %d times per second (carbon-addr).", c.CarbonAddr, c.CarbonPrefix, c.CarbonRate)
	return nil
}

func (c *Config) processWhisperDir(wd string) error {
	if c.WhisperDir == "" {
		return nil
	}
	if !filepath.IsAbs(c.WhisperDir) {
		if wd == "" {
			return fmt.Errorf("whisper-dir must be absolute path if working directory cannot be determined")
		}
		c.WhisperDir = filepath.Join(wd, c.WhisperDir)
	}
	log.Printf("Exporting to whisper files in '%s' (whisper-dir).", c.WhisperDir)
	return nil
}

func (c *Config) processSeries() error {
	seen := make(map[string]bool, len(c.Series))
	for i := range c.Series {
		s := &c.Series[i]
		name := misc.SanitizeName(s.Name)
		if name == "" {
			return fmt.Errorf("series #%d: invalid name %q", i+1, s.Name)
		}
		if seen[name] {
			return fmt.Errorf("series %q: duplicate name", name)
		}
		seen[name] = true
		s.Name = name

		if s.Scale == 0 {
			s.Scale = 1
		}
		if _, err := sensor.New(s.Source, s.Sensor, s.Scale); err != nil {
			return fmt.Errorf("series %q: %v", name, err)
		}
		log.Printf("Series %q: source %s %s (scale %v).", name, s.Source, s.Sensor, s.Scale)
	}
	if len(c.Series) == 0 {
		log.Printf("No [[series]] configured, only accepting pushed samples.")
	}
	return nil
}

type configer interface {
	processConfigPidFile(string) error
	processConfigLogFile(string) error
	processConfigLogCycleInterval() error
	processSampleInterval() error
	processMaxSeries() error
	processIngestRate() error
	processCarbon() error
	processWhisperDir(string) error
	processSeries() error
}

var processConfig = func(c configer, wd string) error {
	steps := []func() error{
		func() error { return c.processConfigPidFile(wd) },
		func() error { return c.processConfigLogFile(wd) },
		c.processConfigLogCycleInterval,
		c.processSampleInterval,
		c.processMaxSeries,
		c.processIngestRate,
		c.processCarbon,
		func() error { return c.processWhisperDir(wd) },
		c.processSeries,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// processListenSpec substitutes ROLLUP_BIND for 0.0.0.0.
func processListenSpec(listenSpec string) string {
	if os.Getenv("ROLLUP_BIND") != "" {
		return strings.Replace(listenSpec, "0.0.0.0", os.Getenv("ROLLUP_BIND"), 1)
	}
	return listenSpec
}
