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
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	pickle "github.com/hydrogen18/stalecucumber"
	"github.com/tgres/rollup/rollup"
	"golang.org/x/time/rate"
)

var dialCarbon = func(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

const (
	// Points per pickle frame, the carbon-relay default.
	carbonBatchSize = 500

	// Points queued while carbon is slow or unreachable.
	carbonMaxPending = 100000
)

// Carbon sends means to a Graphite carbon server using the pickle
// protocol. Export only queues the points, a background goroutine
// sends everything queued as one batch at most perSec times a
// second. The connection is established on first use and
// re-established after a write error.
type Carbon struct {
	*sync.Mutex  // protects pending
	addr, prefix string
	timeout      time.Duration
	limiter      *rate.Limiter
	pending      []point
	maxPending   int
	dropped      int64
	kick         chan struct{}
	cancel       context.CancelFunc
	done         chan struct{}
	closeOnce    sync.Once
	conn         net.Conn // only used by flush
}

// NewCarbon returns a Carbon sink sending at most perSec batches per
// second to addr, with every path prefixed by prefix.
func NewCarbon(addr, prefix string, perSec int) *Carbon {
	c := newCarbon(addr, prefix, perSec)
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
	return c
}

func newCarbon(addr, prefix string, perSec int) *Carbon {
	if perSec <= 0 {
		perSec = 1
	}
	return &Carbon{
		Mutex:      &sync.Mutex{},
		addr:       addr,
		prefix:     prefix,
		timeout:    10 * time.Second,
		limiter:    rate.NewLimiter(rate.Limit(perSec), 1),
		maxPending: carbonMaxPending,
		kick:       make(chan struct{}, 1),
	}
}

// Export queues the available means of snap. It fails only if the
// queue is full, in which case the points are dropped.
func (c *Carbon) Export(name string, ts time.Time, snap rollup.Snapshot) error {
	pts := means(c.prefix, name, ts, snap)
	if len(pts) == 0 {
		return nil
	}

	c.Lock()
	if len(c.pending)+len(pts) > c.maxPending {
		c.Unlock()
		atomic.AddInt64(&c.dropped, int64(len(pts)))
		return fmt.Errorf("carbon: send queue full, %q dropped", name)
	}
	c.pending = append(c.pending, pts...)
	c.Unlock()

	select {
	case c.kick <- struct{}{}:
	default:
	}
	return nil
}

// Dropped returns the number of points dropped because the queue was
// full.
func (c *Carbon) Dropped() int64 { return atomic.LoadInt64(&c.dropped) }

func (c *Carbon) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return // Close sends what is left
		}
		if err := c.flush(); err != nil {
			log.Printf("%v", err)
		}
	}
}

// flush sends everything queued so far.
func (c *Carbon) flush() error {
	c.Lock()
	pts := c.pending
	c.pending = nil
	c.Unlock()

	for len(pts) > 0 {
		n := len(pts)
		if n > carbonBatchSize {
			n = carbonBatchSize
		}
		if err := c.send(pts[:n]); err != nil {
			return fmt.Errorf("%v (%d points lost)", err, len(pts))
		}
		pts = pts[n:]
	}
	return nil
}

func (c *Carbon) send(pts []point) error {
	frame, err := pickleFrame(pts)
	if err != nil {
		return err
	}

	if c.conn == nil {
		if c.conn, err = dialCarbon(c.addr, c.timeout); err != nil {
			c.conn = nil
			return fmt.Errorf("carbon: unable to connect to %s: %v", c.addr, err)
		}
		log.Printf("carbon: connected to %s.", c.addr)
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if _, err = c.conn.Write(frame); err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("carbon: write to %s: %v", c.addr, err)
	}
	return nil
}

// Close stops the sending goroutine, sends whatever is still queued
// and closes the connection.
func (c *Carbon) Close() (err error) {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
			<-c.done
		}
		err = c.flush()
		if c.conn != nil {
			if cerr := c.conn.Close(); err == nil {
				err = cerr
			}
			c.conn = nil
		}
	})
	return err
}

// pickleFrame encodes points the way carbon's pickle receiver expects
// them: a 4 byte big endian length followed by a pickled list of
// (path, (timestamp, value)).
func pickleFrame(pts []point) ([]byte, error) {
	items := make([]interface{}, len(pts))
	for i, p := range pts {
		items[i] = []interface{}{p.path, []interface{}{p.ts.Unix(), float64(p.value)}}
	}

	var payload bytes.Buffer
	if _, err := pickle.NewPickler(&payload).Pickle(items); err != nil {
		return nil, fmt.Errorf("carbon: pickle: %v", err)
	}

	frame := make([]byte, 4+payload.Len())
	binary.BigEndian.PutUint32(frame, uint32(payload.Len()))
	copy(frame[4:], payload.Bytes())
	return frame, nil
}
