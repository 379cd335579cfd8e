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

package rollup

import "sync"

// SyncBuffer is a Buffer safe for concurrent use. An Ingest holds the
// write lock for the whole cascade, so readers never see a half
// updated state.
type SyncBuffer struct {
	sync.RWMutex
	b Buffer
}

// NewSync returns an empty SyncBuffer.
func NewSync() *SyncBuffer {
	return &SyncBuffer{b: *New()}
}

func (s *SyncBuffer) Ingest(v int16) {
	s.Lock()
	defer s.Unlock()
	s.b.Ingest(v)
}

func (s *SyncBuffer) Count() uint64 {
	s.RLock()
	defer s.RUnlock()
	return s.b.Count()
}

func (s *SyncBuffer) Mean(w Window) Value {
	s.RLock()
	defer s.RUnlock()
	return s.b.Mean(w)
}

func (s *SyncBuffer) Segment(w Window) []Value {
	s.RLock()
	defer s.RUnlock()
	return s.b.Segment(w)
}

func (s *SyncBuffer) Snapshot() Snapshot {
	s.RLock()
	defer s.RUnlock()
	return s.b.Snapshot()
}

// IngestSnapshot ingests v and returns the resulting state in one
// step, so that what is exported always matches what was ingested.
func (s *SyncBuffer) IngestSnapshot(v int16) Snapshot {
	s.Lock()
	defer s.Unlock()
	s.b.Ingest(v)
	return s.b.Snapshot()
}
