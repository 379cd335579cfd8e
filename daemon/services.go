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
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tgres/rollup/export"
	"github.com/tgres/rollup/registry"
	"github.com/tgres/rollup/sensor"
	"golang.org/x/time/rate"
)

type trService interface {
	Start() error
	Stop()
}

type serviceMap map[string]trService
type serviceManager struct {
	services serviceMap
}

func newServiceManager(cfg *Config, reg *registry.Registry, sink export.Sink) *serviceManager {
	rcv := newReceiver(reg, sink, cfg.IngestRate)
	return &serviceManager{
		services: serviceMap{
			"gt":  &graphiteTextServiceManager{rcv: rcv, listenSpec: cfg.GraphiteTextListenSpec, timeout: 30 * time.Second},
			"gu":  &graphiteTextServiceManager{rcv: rcv, listenSpec: cfg.GraphiteUdpListenSpec, udp: true},
			"gp":  &graphitePickleServiceManager{rcv: rcv, listenSpec: cfg.GraphitePickleListenSpec, timeout: 30 * time.Second},
			"www": &wwwServer{reg: reg, sink: sink, limiter: rcv.limiter, listenSpec: cfg.HttpListenSpec},
		},
	}
}

func (r *serviceManager) run() error {
	for _, service := range r.services {
		if err := service.Start(); err != nil {
			return err
		}
	}
	return nil
}

func (r *serviceManager) closeListeners() {
	for _, service := range r.services {
		service.Stop()
	}
}

var startServices = func(cfg *Config, reg *registry.Registry, sink export.Sink) (stop func(), err error) {
	sm := newServiceManager(cfg, reg, sink)
	if err := sm.run(); err != nil {
		sm.closeListeners()
		return nil, err
	}
	return sm.closeListeners, nil
}

// receiver is where the push protocols deliver their data points.
type receiver struct {
	ing     ingester
	sink    export.Sink
	limiter *rate.Limiter // nil means unlimited
	dropped int64
}

func newReceiver(ing ingester, sink export.Sink, perSec float64) *receiver {
	r := &receiver{ing: ing, sink: sink}
	if perSec > 0 {
		burst := int(perSec)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
	return r
}

// dataPoint ingests value into the named series. The value is rounded
// to the nearest integer, the timestamp is only used for export since
// a rollup buffer counts samples, not time.
func (r *receiver) dataPoint(name string, ts time.Time, value float64) error {
	if r.limiter != nil && !r.limiter.Allow() {
		atomic.AddInt64(&r.dropped, 1)
		return fmt.Errorf("ingest-rate exceeded, %q dropped", name)
	}
	v, err := sensor.Scale(value, 1)
	if err != nil {
		return err
	}
	name, snap, err := r.ing.Ingest(name, v)
	if err != nil {
		return err
	}
	if r.sink != nil {
		if err := r.sink.Export(name, ts, snap); err != nil {
			log.Printf("receiver: %v", err)
		}
	}
	return nil
}

// Dropped returns the number of data points refused by the rate limit.
func (r *receiver) Dropped() int64 { return atomic.LoadInt64(&r.dropped) }

// connTracker keeps the open connections of a listener so that they
// can be closed, and their handlers waited for, on Stop.
type connTracker struct {
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// add registers conn, it returns false once closeAll was called.
func (t *connTracker) add(conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	if t.conns == nil {
		t.conns = make(map[net.Conn]struct{})
	}
	t.conns[conn] = struct{}{}
	t.wg.Add(1)
	return true
}

func (t *connTracker) done(conn net.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
	t.wg.Done()
}

// serve runs handle(conn) in a goroutine tracked by t.
func (t *connTracker) serve(conn net.Conn, handle func(net.Conn)) {
	if !t.add(conn) {
		conn.Close()
		return
	}
	go func() {
		defer t.done(conn)
		handle(conn)
	}()
}

// closeAll closes every tracked connection and waits for the
// handlers to return.
func (t *connTracker) closeAll() {
	t.mu.Lock()
	t.closed = true
	for conn := range t.conns {
		conn.Close()
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// acceptLoop hands every connection accepted on l to handle until l
// is closed.
func acceptLoop(l net.Listener, name string, conns *connTracker, handle func(net.Conn)) error {
	var tempDelay time.Duration
	for {
		conn, err := l.Accept()

		// This code comes from the golang http lib, it attempts to
		// retry accepting a connection when too many files are open
		// under heavy load.
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				log.Printf("%s: Accept error: %v; retrying in %v", name, err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		conns.serve(conn, handle)
	}
}
