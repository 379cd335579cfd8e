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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync/atomic"
	"time"

	pickle "github.com/hydrogen18/stalecucumber"
)

// maxPickleFrame bounds the length prefix so a bad client cannot make
// us allocate arbitrary memory.
const maxPickleFrame = 1 << 20

// graphitePickleServiceManager accepts the Graphite pickle protocol
// as sent by carbon-relay.
type graphitePickleServiceManager struct {
	rcv        *receiver
	listener   net.Listener
	listenSpec string
	timeout    time.Duration
	stop       int32
	conns      connTracker
}

func (g *graphitePickleServiceManager) Stop() {
	if g.stopped() {
		return
	}
	atomic.StoreInt32(&(g.stop), 1)
	if g.listener != nil {
		log.Printf("Closing listener %s", g.listenSpec)
		g.listener.Close()
	}
	g.conns.closeAll()
}

func (g *graphitePickleServiceManager) stopped() bool {
	return atomic.LoadInt32(&(g.stop)) != 0
}

func (g *graphitePickleServiceManager) Start() error {
	if g.listenSpec == "" {
		log.Printf("Not starting Graphite Pickle Protocol because graphite-pickle-listen-spec is blank.")
		return nil
	}

	l, err := net.Listen("tcp", processListenSpec(g.listenSpec))
	if err != nil {
		return fmt.Errorf("Error starting Graphite Pickle Protocol: %v", err)
	}
	g.listener = l

	log.Printf("Graphite Pickle protocol Listening on %s", l.Addr())

	go acceptLoop(l, "graphitePickleServer()", &g.conns, g.handleGraphitePickleProtocol)

	return nil
}

func (g *graphitePickleServiceManager) handleGraphitePickleProtocol(conn net.Conn) {
	defer conn.Close()

	var err error
	for !g.stopped() {
		if g.timeout != 0 {
			conn.SetDeadline(time.Now().Add(g.timeout))
		}

		var length uint32
		if err = binary.Read(conn, binary.BigEndian, &length); err != nil {
			break
		}
		if length > maxPickleFrame {
			err = fmt.Errorf("frame too large: %d", length)
			break
		}

		buff := make([]byte, length)
		if _, err = io.ReadFull(conn, buff); err != nil {
			break
		}

		if err = g.handleFrame(buff); err != nil {
			break
		}
	}

	if err != nil && err != io.EOF {
		if !strings.Contains(err.Error(), "use of closed") {
			log.Printf("handleGraphitePickleProtocol(): Error reading: %v", err)
		}
	}
}

// handleFrame decodes a list of (name, (timestamp, value)) and
// delivers every data point in it.
func (g *graphitePickleServiceManager) handleFrame(buff []byte) error {
	items, err := pickle.ListOrTuple(pickle.Unpickle(bytes.NewBuffer(buff)))
	if err != nil {
		return err
	}

	for _, item := range items {
		itemSlice, err := pickle.ListOrTuple(item, nil)
		if err != nil {
			return err
		}
		if len(itemSlice) != 2 {
			return fmt.Errorf("item wrong length: %d", len(itemSlice))
		}
		name, err := pickle.String(itemSlice[0], nil)
		dp, err := pickle.ListOrTuple(itemSlice[1], err)
		if err != nil {
			return err
		}
		if len(dp) != 2 {
			return fmt.Errorf("dp wrong length: %d", len(dp))
		}
		tstamp, err := pickle.Int(dp[0], nil)
		if err != nil {
			return err
		}
		value, err := pickle.Float(dp[1], nil)
		if _, ok := err.(pickle.WrongTypeError); ok {
			var intValue int64
			if intValue, err = pickle.Int(dp[1], nil); err == nil {
				value = float64(intValue)
			}
		}
		if err != nil {
			return err
		}
		if err := g.rcv.dataPoint(name, time.Unix(tstamp, 0), value); err != nil {
			log.Printf("handleGraphitePickleProtocol(): %v", err)
		}
	}
	return nil
}
