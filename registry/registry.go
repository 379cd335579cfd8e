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

// Package registry keeps the named rollup buffers of a node. The
// number of buffers is bounded, when full the least recently used
// one is dropped.
package registry

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/tgres/rollup/misc"
	"github.com/tgres/rollup/rollup"
)

// Registry maps series names to their buffers. Names are sanitized on
// the way in, so every buffer is reachable by its exported name.
type Registry struct {
	cache     *lru.Cache
	mu        sync.Mutex // serializes get-or-create
	evictions int64
}

// New returns a Registry holding at most size buffers.
func New(size int) (*Registry, error) {
	r := &Registry{}
	var err error
	if r.cache, err = lru.NewWithEvict(size, r.evicted); err != nil {
		return nil, fmt.Errorf("Unable to create registry of size %d: %v", size, err)
	}
	return r, nil
}

// Called by the LRU with its lock held, must not touch the cache.
func (r *Registry) evicted(key, _ interface{}) {
	atomic.AddInt64(&r.evictions, 1)
	log.Printf("registry: series %q dropped, its history is lost.", key)
}

// Evictions returns how many buffers were dropped, either to make
// room or by Remove.
func (r *Registry) Evictions() int64 { return atomic.LoadInt64(&r.evictions) }

// Get returns the buffer for name, if there is one.
func (r *Registry) Get(name string) (*rollup.SyncBuffer, bool) {
	if v, ok := r.cache.Get(name); ok {
		return v.(*rollup.SyncBuffer), true
	}
	return nil, false
}

// GetOrCreate sanitizes name and returns its buffer, creating an
// empty one if necessary.
func (r *Registry) GetOrCreate(name string) (string, *rollup.SyncBuffer, error) {
	clean := misc.SanitizeName(name)
	if clean == "" {
		return "", nil, fmt.Errorf("invalid series name: %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.Get(clean); ok {
		return clean, b, nil
	}
	b := rollup.NewSync()
	r.cache.Add(clean, b)
	return clean, b, nil
}

// Ingest ingests v into the buffer of name, returning the sanitized
// name and the state right after ingestion.
func (r *Registry) Ingest(name string, v int16) (string, rollup.Snapshot, error) {
	clean, b, err := r.GetOrCreate(name)
	if err != nil {
		return "", rollup.Snapshot{}, err
	}
	return clean, b.IngestSnapshot(v), nil
}

// Names returns the series names, least recently used first.
func (r *Registry) Names() []string {
	keys := r.cache.Keys()
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.(string))
	}
	return names
}

// Len returns the number of series.
func (r *Registry) Len() int { return r.cache.Len() }

// Remove drops a series.
func (r *Registry) Remove(name string) {
	r.cache.Remove(name)
}
