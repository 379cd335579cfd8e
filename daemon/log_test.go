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
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func Test_archivedLogPath(t *testing.T) {
	ts := time.Date(2017, 3, 4, 5, 6, 7, 0, time.UTC)
	if p := archivedLogPath("/var/log/rollup.log", ts); p != "/var/log/rollup.log-20170304_050607" {
		t.Errorf("archivedLogPath = %q", p)
	}
}

func Test_logFileCycler(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "rollup.log")

	save_timeNow := timeNow
	defer func() { timeNow = save_timeNow }()
	ts := time.Date(2017, 3, 4, 5, 6, 7, 0, time.UTC)
	timeNow = func() time.Time { return ts }

	if err := logFileCycler(logPath, time.Hour); err != nil {
		t.Fatalf("logFileCycler: %v", err)
	}
	defer closeLog()

	log.Printf("first file")
	if err := cycleLogFile(logPath); err != nil {
		t.Fatalf("cycleLogFile: %v", err)
	}
	log.Printf("second file")
	closeLog()

	archived, err := os.ReadFile(archivedLogPath(logPath, ts))
	if err != nil {
		t.Fatalf("archived log: %v", err)
	}
	if !strings.Contains(string(archived), "first file") {
		t.Errorf("archived log missing first message: %q", archived)
	}
	current, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("current log: %v", err)
	}
	if !strings.Contains(string(current), "second file") || strings.Contains(string(current), "first file") {
		t.Errorf("current log: %q", current)
	}
}

func Test_cycleLogFile_error(t *testing.T) {
	if err := cycleLogFile(filepath.Join(t.TempDir(), "missing", "rollup.log")); err == nil {
		t.Errorf("cycleLogFile into a missing directory: no error")
	}
}
