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

package export

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/kisielk/whisper-go/whisper"
	"github.com/tgres/rollup/rollup"
)

// Archives of every whisper file: a day by the minute, a week by 5
// minutes and a year by the hour.
var whisperArchives = []whisper.ArchiveInfo{
	whisper.NewArchiveInfo(60, 1440),
	whisper.NewArchiveInfo(300, 2016),
	whisper.NewArchiveInfo(3600, 8760),
}

// Whisper writes the means of every series into whisper files laid
// out as <dir>/<name>/<window>.wsp, so that a Graphite installation
// (or anything that reads whisper) can graph them. At most maxOpen
// files are kept open, the least recently written is closed first.
type Whisper struct {
	*sync.Mutex
	dir      string
	dbs      *lru.Cache
	closeErr error
}

// NewWhisper returns a Whisper sink rooted at dir, creating dir if
// necessary.
func NewWhisper(dir string, maxOpen int) (*Whisper, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("Unable to create directory: '%s' (%v).", dir, err)
	}
	w := &Whisper{Mutex: &sync.Mutex{}, dir: dir}
	var err error
	if w.dbs, err = lru.NewWithEvict(maxOpen, w.evicted); err != nil {
		return nil, fmt.Errorf("whisper: %v", err)
	}
	return w, nil
}

// Called by the LRU, always with w locked.
func (w *Whisper) evicted(key, value interface{}) {
	if err := value.(*whisper.Whisper).Close(); err != nil && w.closeErr == nil {
		w.closeErr = fmt.Errorf("whisper: close %s: %v", key, err)
	}
}

func (w *Whisper) Export(name string, ts time.Time, snap rollup.Snapshot) error {
	w.Lock()
	defer w.Unlock()

	for _, win := range rollup.MeanWindows {
		v, ok := snap.Mean(win).Int16()
		if !ok {
			continue
		}
		db, err := w.open(name, win)
		if err != nil {
			return err
		}
		if err := db.Update(whisper.NewPoint(ts, float64(v))); err != nil {
			return fmt.Errorf("whisper: update %s/%v: %v", name, win, err)
		}
	}
	return nil
}

func (w *Whisper) path(name string, win rollup.Window) string {
	return filepath.Join(w.dir, name, win.String()+".wsp")
}

// open returns the (cached) whisper database for the series window,
// creating the file on first use.
func (w *Whisper) open(name string, win rollup.Window) (*whisper.Whisper, error) {
	path := w.path(name, win)
	if db, ok := w.dbs.Get(path); ok {
		return db.(*whisper.Whisper), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("whisper: %v", err)
	}
	db, err := whisper.Open(path)
	if os.IsNotExist(err) {
		opts := whisper.CreateOptions{
			XFilesFactor:      whisper.DefaultXFilesFactor,
			AggregationMethod: whisper.AggregationAverage,
		}
		if db, err = whisper.Create(path, whisperArchives, opts); err == nil {
			log.Printf("whisper: created %s.", path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("whisper: %s: %v", path, err)
	}
	w.dbs.Add(path, db)
	return db, nil
}

func (w *Whisper) Close() error {
	w.Lock()
	defer w.Unlock()
	w.closeErr = nil
	w.dbs.Purge()
	return w.closeErr
}
