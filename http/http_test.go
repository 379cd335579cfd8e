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

package http

import (
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tgres/rollup/registry"
	"github.com/tgres/rollup/rollup"
	"golang.org/x/time/rate"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	reg, err := registry.New(8)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	for i := int16(1); i <= 6; i++ {
		reg.Ingest("cellar", i)
	}
	reg.Ingest("attic", 300)
	return reg
}

func Test_SeriesListHandler(t *testing.T) {
	reg := newTestRegistry(t)
	rr := httptest.NewRecorder()
	SeriesListHandler(reg)(rr, httptest.NewRequest("GET", "/series", nil))

	var names []string
	if err := json.Unmarshal(rr.Body.Bytes(), &names); err != nil {
		t.Fatalf("Unmarshal(%s): %v", rr.Body.String(), err)
	}
	if len(names) != 2 || names[0] != "cellar" || names[1] != "attic" {
		t.Errorf("names = %v", names)
	}
}

func Test_SeriesHandler(t *testing.T) {
	reg := newTestRegistry(t)

	rr := httptest.NewRecorder()
	SeriesHandler(reg)(rr, httptest.NewRequest("GET", "/series/cellar", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Name     string
		Count    uint64
		Means    map[string]*int16
		Segments map[string][]*int16
		Data     []int16
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal(%s): %v", rr.Body.String(), err)
	}
	if resp.Name != "cellar" || resp.Count != 6 {
		t.Errorf("name = %q, count = %d", resp.Name, resp.Count)
	}
	if m := resp.Means["5m"]; m == nil || *m != 4 {
		t.Errorf("means[5m] = %v, expected 4", m)
	}
	if resp.Means["1h"] != nil || resp.Means["24h"] != nil {
		t.Errorf("1h and 24h means should be null: %s", rr.Body.String())
	}
	if seg := resp.Segments["1m"]; len(seg) != rollup.MinuteSlots || seg[0] == nil || *seg[0] != 6 {
		t.Errorf("segments[1m] = %v", seg)
	}
	if len(resp.Data) != rollup.Slots || resp.Data[0] != 6 || resp.Data[5] != 4 || resp.Data[6] != rollup.Sentinel {
		t.Errorf("data = %v", resp.Data)
	}

	rr = httptest.NewRecorder()
	SeriesHandler(reg)(rr, httptest.NewRequest("GET", "/series/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown series: status %d, expected 404", rr.Code)
	}
}

func Test_DisplayHandler(t *testing.T) {
	reg := newTestRegistry(t)

	rr := httptest.NewRecorder()
	DisplayHandler(reg)(rr, httptest.NewRequest("GET", "/display/cellar", nil))
	body := rr.Body.String()
	for _, exp := range []string{"cellar", "n=6", "1m: 6 5 4 3 2\n", "5m: 4 -- --", "1h: -- --"} {
		if !strings.Contains(body, exp) {
			t.Errorf("display does not contain %q:\n%s", exp, body)
		}
	}

	rr = httptest.NewRecorder()
	DisplayHandler(reg)(rr, httptest.NewRequest("GET", "/display/", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("no name: status %d, expected 404", rr.Code)
	}
}

type fakeExporter struct {
	names []string
}

func (f *fakeExporter) Export(name string, ts time.Time, snap rollup.Snapshot) error {
	f.names = append(f.names, name)
	return nil
}

func Test_IngestHandler(t *testing.T) {
	reg := newTestRegistry(t)
	exp := &fakeExporter{}
	h := IngestHandler(reg, nil, exp)

	for _, c := range []struct {
		method, url string
		code        int
	}{
		{"POST", "/ingest?name=attic&value=310", http.StatusNoContent},
		{"GET", "/ingest?name=new+node&value=-5", http.StatusNoContent},
		{"POST", "/ingest?name=attic&value=40000", http.StatusBadRequest},
		{"POST", "/ingest?name=attic&value=-32768", http.StatusBadRequest},
		{"POST", "/ingest?name=attic&value=1.5", http.StatusBadRequest},
		{"POST", "/ingest?name=!!!&value=1", http.StatusBadRequest},
		{"PUT", "/ingest?name=attic&value=1", http.StatusMethodNotAllowed},
	} {
		rr := httptest.NewRecorder()
		h(rr, httptest.NewRequest(c.method, c.url, nil))
		if rr.Code != c.code {
			t.Errorf("%s %s: status %d, expected %d (%s)", c.method, c.url, rr.Code, c.code, rr.Body.String())
		}
	}

	if b, _ := reg.Get("attic"); b.Count() != 2 || b.Mean(rollup.Minute) != rollup.Known(310) {
		t.Errorf("attic: count %d, 1m mean %v", b.Count(), b.Mean(rollup.Minute))
	}
	if b, ok := reg.Get("new_node"); !ok || b.Mean(rollup.Minute) != rollup.Known(-5) {
		t.Errorf("new_node was not created")
	}
	if len(exp.names) != 2 || exp.names[1] != "new_node" {
		t.Errorf("exported = %v", exp.names)
	}
}

func Test_IngestHandler_Limit(t *testing.T) {
	reg := newTestRegistry(t)
	h := IngestHandler(reg, rate.NewLimiter(rate.Every(time.Hour), 1), nil)

	codes := make([]int, 2)
	for i := range codes {
		rr := httptest.NewRecorder()
		h(rr, httptest.NewRequest("POST", "/ingest?name=attic&value=1", nil))
		codes[i] = rr.Code
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, expected [204 429]", codes)
	}
}

func Test_GzipHandler(t *testing.T) {
	reg := newTestRegistry(t)
	h := GzipHandler(SeriesListHandler(reg))

	req := httptest.NewRequest("GET", "/series", nil)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	rr := httptest.NewRecorder()
	h(rr, req)
	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rr.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	var names []string
	if err := json.NewDecoder(zr).Decode(&names); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("names = %v", names)
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest("GET", "/series", nil))
	if rr.Header().Get("Content-Encoding") != "" || !strings.Contains(rr.Body.String(), "cellar") {
		t.Errorf("uncompressed response: %q %q", rr.Header().Get("Content-Encoding"), rr.Body.String())
	}
}
