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
	"bufio"
	"fmt"
	"log"
	"net"
	"strings"
	"sync/atomic"
	"time"
)

// graphiteTextServiceManager accepts the Graphite plaintext protocol,
// "name value timestamp" one per line, over TCP or UDP.
type graphiteTextServiceManager struct {
	rcv        *receiver
	listenSpec string
	udp        bool
	stop       int32

	// TCP
	listener net.Listener
	timeout  time.Duration

	// UDP
	conn net.Conn

	conns connTracker
}

func (g *graphiteTextServiceManager) Stop() {
	if g.stopped() {
		return
	}
	atomic.StoreInt32(&(g.stop), 1)
	if g.conn != nil {
		log.Printf("Closing UDP listener %s", g.listenSpec)
	}
	if g.listener != nil {
		log.Printf("Closing TCP listener %s", g.listenSpec)
		g.listener.Close()
	}
	g.conns.closeAll() // includes the UDP conn
}

func (g *graphiteTextServiceManager) Start() error {
	if g.udp {
		return g.startUDP()
	}
	return g.startTCP()
}

func (g *graphiteTextServiceManager) stopped() bool {
	return atomic.LoadInt32(&(g.stop)) != 0
}

func (g *graphiteTextServiceManager) startUDP() error {
	if g.listenSpec == "" {
		log.Printf("Not starting Graphite UDP protocol because graphite-udp-listen-spec is blank.")
		return nil
	}

	udpAddr, err := net.ResolveUDPAddr("udp", processListenSpec(g.listenSpec))
	if err == nil {
		g.conn, err = net.ListenUDP("udp", udpAddr)
	}
	if err != nil {
		return fmt.Errorf("Error starting Graphite UDP Text Protocol: %v", err)
	}

	log.Printf("Graphite UDP protocol Listening on %s", g.conn.LocalAddr())

	// UDP only has one connection, unlike TCP
	g.conns.serve(g.conn, g.handleGraphiteTextProtocol)

	return nil
}

func (g *graphiteTextServiceManager) startTCP() error {
	if g.listenSpec == "" {
		log.Printf("Not starting Graphite Text protocol because graphite-text-listen-spec is blank.")
		return nil
	}

	l, err := net.Listen("tcp", processListenSpec(g.listenSpec))
	if err != nil {
		return fmt.Errorf("Error starting Graphite Text Protocol: %v", err)
	}
	g.listener = l

	log.Printf("Graphite text protocol Listening on %s", l.Addr())

	go acceptLoop(l, "graphiteTCPTextServer()", &g.conns, g.handleGraphiteTextProtocol)

	return nil
}

// Handles incoming requests for both TCP and UDP
func (g *graphiteTextServiceManager) handleGraphiteTextProtocol(conn net.Conn) {
	defer conn.Close()

	if g.timeout != 0 {
		conn.SetDeadline(time.Now().Add(g.timeout))
	}

	// We use Scanner, becase it has a MaxScanTokenSize of 64K
	connbuf := bufio.NewScanner(conn)

	for connbuf.Scan() {
		packetStr := connbuf.Text()

		if name, ts, v, err := parseGraphitePacket(packetStr); err != nil {
			log.Printf("handleGraphiteTextProtocol(): bad packet: %v", packetStr)
		} else if err = g.rcv.dataPoint(name, ts, v); err != nil {
			log.Printf("handleGraphiteTextProtocol(): %v", err)
		}

		if g.timeout != 0 {
			conn.SetDeadline(time.Now().Add(g.timeout))
		}

		if g.stopped() {
			return
		}
	}

	if err := connbuf.Err(); err != nil {
		if !strings.Contains(err.Error(), "use of closed") {
			log.Printf("handleGraphiteTextProtocol(): Error reading: %v", err)
		}
	}
}

func parseGraphitePacket(packetStr string) (string, time.Time, float64, error) {
	var (
		name   string
		tstamp int64
		value  float64
	)

	if n, err := fmt.Sscanf(packetStr, "%s %f %d", &name, &value, &tstamp); n != 3 || err != nil {
		return "", time.Time{}, 0, fmt.Errorf("error %v scanning input: %q", err, packetStr)
	}

	var t time.Time
	if tstamp == -1 { // https://github.com/graphite-project/carbon/issues/54
		t = time.Now()
	} else {
		t = time.Unix(tstamp, 0)
	}
	return name, t, value, nil
}
