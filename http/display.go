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
	"fmt"
	"io"
	"net/http"

	"github.com/tgres/rollup/rollup"
)

// writeDisplay renders a snapshot as fixed width text, the way it
// would be shown on a small character display:
//
//	cellar                   n=61
//	     1m     5m     1h    24h
//	     61     59     31     --
//	1m: 61 60 59 58 57
//	5m: 59 54 49 44 39 34 29 24 19 14 9
//	1h: 31 -- -- ...
func writeDisplay(out io.Writer, name string, snap rollup.Snapshot) {
	fmt.Fprintf(out, "%-24s n=%d\n", name, snap.Count)
	for _, w := range rollup.MeanWindows {
		fmt.Fprintf(out, "%7s", w)
	}
	fmt.Fprintln(out)
	for _, w := range rollup.MeanWindows {
		fmt.Fprintf(out, "%7s", snap.Mean(w))
	}
	fmt.Fprintln(out)
	for _, w := range []rollup.Window{rollup.Minute, rollup.FiveMinutes, rollup.Hour} {
		fmt.Fprintf(out, "%-3s", w.String()+":")
		for _, v := range snap.Segment(w) {
			fmt.Fprintf(out, " %s", v)
		}
		fmt.Fprintln(out)
	}
}

// DisplayHandler responds with the text rendering of the series
// named in the path (/display/<name>).
func DisplayHandler(sf SeriesFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer recoverHandler("DisplayHandler")

		name, b := seriesFromPath(sf, w, r, "/display/")
		if b == nil {
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		writeDisplay(w, name, b.Snapshot())
	}
}
