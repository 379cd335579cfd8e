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

// Package misc is misc stuff.
package misc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	sanitizeRegexSpace       = regexp.MustCompile(`\s+`)
	sanitizeRegexSlash       = regexp.MustCompile("/")
	sanitizeRegexNonAlphaNum = regexp.MustCompile(`[^a-zA-Z_\-0-9\.]`)
)

// SanitizeName makes a series name safe to be used as a Graphite path
// and as a file name: spaces become underscores, slashes dashes, and
// anything else not alphanumeric, '_', '-' or '.' is dropped.
func SanitizeName(name string) string {
	name = sanitizeRegexSpace.ReplaceAllString(strings.TrimSpace(name), "_")
	name = sanitizeRegexSlash.ReplaceAllString(name, "-")
	return sanitizeRegexNonAlphaNum.ReplaceAllString(name, "")
}

// Units time.ParseDuration does not know about. Longer suffixes first.
var durationUnits = []struct {
	suffix string
	unit   time.Duration
}{
	{"hour", time.Hour},
	{"min", time.Minute},
	{"d", 24 * time.Hour},
	{"w", 7 * 24 * time.Hour},
}

// BetterParseDuration is time.ParseDuration which also understands
// "min", "hour", "d" (day) and "w" (week), e.g. "1min" or "2d".
func BetterParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	for _, u := range durationUnits {
		if !strings.HasSuffix(s, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(s[:len(s)-len(u.suffix)], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n * float64(u.unit)), nil
	}
	return time.ParseDuration(s)
}
