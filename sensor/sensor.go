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

// Package sensor produces the once-a-minute integer samples that are
// fed to rollup buffers, mostly from host statistics via gopsutil.
package sensor

import (
	"fmt"
	"math"
	"strings"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
	"github.com/tgres/rollup/rollup"
)

// A Sampler takes one sample when asked to.
type Sampler interface {
	Sample() (int16, error)
}

// SamplerFunc adapts a function to a Sampler.
type SamplerFunc func() (int16, error)

func (f SamplerFunc) Sample() (int16, error) { return f() }

// Sources understood by New.
var Sources = []string{"cpu", "load1", "load5", "mem", "temp"}

// These are vars so that tests can stub out the host.
var (
	cpuPercent = func() (float64, error) {
		ps, err := cpu.Percent(0, false)
		if err != nil {
			return 0, err
		}
		if len(ps) == 0 {
			return 0, fmt.Errorf("no cpu statistics")
		}
		return ps[0], nil
	}
	loadAvg = func() (*load.AvgStat, error) {
		return load.Avg()
	}
	memUsedPercent = func() (float64, error) {
		vm, err := mem.VirtualMemory()
		if err != nil {
			return 0, err
		}
		return vm.UsedPercent, nil
	}
	temperatures = func() ([]host.TemperatureStat, error) {
		return host.SensorsTemperatures()
	}
)

// New returns a Sampler for the named source. The reading is
// multiplied by scale before being rounded to an integer, so a scale
// of 10 keeps one decimal. sensorKey selects the sensor for "temp"
// and is ignored otherwise.
func New(source, sensorKey string, scale float64) (Sampler, error) {
	if scale == 0 {
		scale = 1
	}

	var read func() (float64, error)
	switch strings.ToLower(source) {
	case "cpu":
		read = cpuPercent
	case "load1", "load5":
		five := strings.ToLower(source) == "load5"
		read = func() (float64, error) {
			avg, err := loadAvg()
			if err != nil {
				return 0, err
			}
			if five {
				return avg.Load5, nil
			}
			return avg.Load1, nil
		}
	case "mem":
		read = memUsedPercent
	case "temp":
		if sensorKey == "" {
			return nil, fmt.Errorf("temp source requires a sensor key")
		}
		read = func() (float64, error) {
			return temperature(sensorKey)
		}
	default:
		return nil, fmt.Errorf("Invalid source: %q (valid sources: %s)", source, strings.Join(Sources, ", "))
	}

	return SamplerFunc(func() (int16, error) {
		x, err := read()
		if err != nil {
			return 0, err
		}
		return Scale(x, scale)
	}), nil
}

func temperature(key string) (float64, error) {
	temps, err := temperatures()
	// gopsutil reports partial results along with a warning error
	for _, t := range temps {
		if t.SensorKey == key {
			return t.Temperature, nil
		}
	}
	if err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("sensor %q not found", key)
}

// Scale converts a reading to the int16 stored in a rollup buffer,
// rounding x*scale to the nearest integer. The result is clamped so
// that it never equals rollup.Sentinel.
func Scale(x, scale float64) (int16, error) {
	v := math.Round(x * scale)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("reading %v (scale %v) is not a number", x, scale)
	}
	if v > math.MaxInt16 {
		return math.MaxInt16, nil
	}
	if v <= rollup.Sentinel {
		return rollup.Sentinel + 1, nil
	}
	return int16(v), nil
}
