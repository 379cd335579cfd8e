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
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/tgres/rollup/export"
	h "github.com/tgres/rollup/http"
	"github.com/tgres/rollup/registry"
	"golang.org/x/time/rate"
)

func newServeMux(reg *registry.Registry, limiter *rate.Limiter, sink export.Sink) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/series", h.GzipHandler(h.SeriesListHandler(reg)))
	mux.HandleFunc("/series/", h.GzipHandler(h.SeriesHandler(reg)))
	mux.HandleFunc("/display/", h.DisplayHandler(reg))
	mux.HandleFunc("/ingest", h.IngestHandler(reg, limiter, sink))
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) { fmt.Fprintf(w, "OK\n") })
	return mux
}

type wwwServer struct {
	reg        *registry.Registry
	sink       export.Sink
	limiter    *rate.Limiter
	listenSpec string
	listener   net.Listener
	server     *http.Server
}

func (g *wwwServer) Start() error {
	if g.listenSpec == "" {
		log.Printf("Not starting HTTP server because http-listen-spec is blank.")
		return nil
	}

	l, err := net.Listen("tcp", processListenSpec(g.listenSpec))
	if err != nil {
		return fmt.Errorf("Error starting HTTP protocol: %v", err)
	}
	g.listener = l

	g.server = &http.Server{
		Handler:        newServeMux(g.reg, g.limiter, g.sink),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 16}

	log.Printf("HTTP protocol Listening on %s", l.Addr())

	go func() {
		if err := g.server.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server: %v", err)
		}
	}()
	return nil
}

// Stop waits up to 5 seconds for requests in flight.
func (g *wwwServer) Stop() {
	if g.server == nil {
		return
	}
	log.Printf("Closing listener %s", g.listenSpec)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown: %v", err)
	}
	g.server = nil
}
