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

// Package daemon runs rollup as a service: it samples the configured
// series once a minute, serves them over HTTP and exports them.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tgres/rollup/registry"
)

var getCwd = func() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Unable to determine current working directory: %v", err)
		return ""
	}
	return wd
}

var savePid = func(pidPath string) error {
	f, err := os.Create(pidPath)
	if err != nil {
		return fmt.Errorf("Unable to create pid file '%s': (%v)", pidPath, err)
	}
	defer f.Close()
	fmt.Fprintf(f, "%d\n", os.Getpid())
	log.Printf("Pid saved in %s.", pidPath)
	return nil
}

var createRegistry = func(cfg *Config) (*registry.Registry, error) {
	return registry.New(cfg.MaxSeries)
}

var waitForSignal = func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	signal.Stop(ch)
	log.Printf("Got signal: %v", s)
}

// Init reads the configuration and runs the daemon until it receives
// SIGINT or SIGTERM. It returns nil if the daemon never started,
// otherwise the configuration to be passed to Finish.
func Init(cfgPath string) (cfg *Config) {
	log.Printf("Rollup starting.")

	cfg, err := readConfig(cfgPath)
	if err != nil {
		log.Printf("Error reading config file %s: %v", cfgPath, err)
		return nil
	}

	if err := processConfig(configer(cfg), getCwd()); err != nil { // This validates the config
		log.Printf("Error in config file %s: %v", cfgPath, err)
		return nil
	}

	if cfg.LogPath != "" {
		if err := logFileCycler(cfg.LogPath, cfg.LogCycle.Duration); err != nil {
			log.Printf("%v", err)
			return nil
		}
	}

	if err := savePid(cfg.PidPath); err != nil {
		log.Printf("%v", err)
		return cfg
	}

	if err := run(cfg); err != nil {
		log.Printf("Exiting: %v", err)
	}
	return cfg
}

func run(cfg *Config) error {
	reg, err := createRegistry(cfg)
	if err != nil {
		return err
	}

	samplers, err := createSamplers(cfg)
	if err != nil {
		return err
	}

	sinks, err := createSinks(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Printf("%v", err)
		}
	}()

	stopServices, err := startServices(cfg, reg, sinks)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := startSampling(ctx, cfg, samplers, reg, sinks)

	log.Printf("Rollup ready.")
	waitForSignal()

	log.Printf("Shutting down...")
	cancel()
	<-done
	stopServices()
	return nil
}

// Finish removes the pid file and closes the log.
func Finish(cfg *Config) {
	log.Printf("Rollup finished.")
	closeLog()
	if cfg.PidPath != "" {
		os.Remove(cfg.PidPath)
	}
}
