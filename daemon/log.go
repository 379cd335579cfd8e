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
	"sync"
	"time"
)

func init() {
	log.SetPrefix(fmt.Sprintf("[%d] ", os.Getpid()))
}

var timeNow = func() time.Time {
	return time.Now()
}

var osRename = func(a, b string) error {
	return os.Rename(a, b)
}

var (
	logMu      sync.Mutex
	logFile    *os.File
	stopCycler chan struct{}
)

// archivedLogPath is where the current log file goes when cycled.
func archivedLogPath(logPath string, t time.Time) string {
	logDir, name := filepath.Split(logPath)
	return filepath.Join(logDir, name+"-"+t.Format("20060102_150405"))
}

var cycleLogFile = func(logPath string) error {
	logMu.Lock()
	defer logMu.Unlock()

	if logFile != nil {
		archived := archivedLogPath(logPath, timeNow())
		log.Printf("Starting new log file, current log archived as: '%s'", archived)
		if err := osRename(logPath, archived); err != nil {
			log.Printf("Unable to archive log file: %v", err)
		}
	}

	file, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND|os.O_SYNC, 0666)
	if err != nil {
		return fmt.Errorf("Unable to open log file '%s', %v", logPath, err)
	}

	log.SetOutput(file)
	if logFile != nil {
		logFile.Close()
	}
	logFile = file
	return nil
}

// logFileCycler switches logging to logPath and starts a new log file
// every logCycle until closeLog is called.
var logFileCycler = func(logPath string, logCycle time.Duration) error {
	if err := cycleLogFile(logPath); err != nil {
		return err
	}
	logDir, _ := filepath.Split(logPath)
	fmt.Fprintf(os.Stderr, "All further status messages will be written to log file(s) in '%s'.\n", logDir)

	stop := make(chan struct{})
	logMu.Lock()
	stopCycler = stop
	logMu.Unlock()

	go func() {
		ticker := time.NewTicker(logCycle)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := cycleLogFile(logPath); err != nil {
					fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
				}
			}
		}
	}()
	return nil
}

// closeLog stops cycling and reverts logging to stderr.
func closeLog() {
	logMu.Lock()
	defer logMu.Unlock()
	if stopCycler != nil {
		close(stopCycler)
		stopCycler = nil
	}
	log.SetOutput(os.Stderr)
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
