/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Command postalevent runs the event fan-out service (event.Server) as a
// standalone binary, the way a grommunio deployment runs its event
// daemon separately from the IMAP/SMTP processes that publish to it.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/postalcore/postal/event"
	"github.com/postalcore/postal/framework/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		listenAddr = flag.String("listen", "0.0.0.0:33333", "address to accept event connections on")
		aclPath    = flag.String("acl", "/etc/postal/event_acl.txt", "path to the event service ACL file")
		maxConns   = flag.Int("max-conns", 4096, "maximum concurrent pre-LISTEN connections")
		metricAddr = flag.String("metrics", "", "address to serve Prometheus metrics on (empty disables)")
		pubBurst   = flag.Int("publish-burst", 0, "per-connection publish-verb burst size (0 disables rate limiting)")
		pubEvery   = flag.Duration("publish-interval", time.Second, "token replenishment interval for publish-burst")
	)
	flag.Parse()

	logger := log.Logger{Name: "postalevent", Out: log.DefaultLogger.Out}

	srv, err := event.NewServer(event.Config{
		ListenAddr:      *listenAddr,
		ACLPath:         *aclPath,
		MaxConns:        *maxConns,
		PublishBurst:    *pubBurst,
		PublishInterval: *pubEvery,
		Log:             logger,
	})
	if err != nil {
		logger.Error("failed to construct event server", err)
		os.Exit(1)
	}

	if *metricAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(srv.Collector())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricAddr, mux); err != nil {
				logger.Error("metrics server exited", err)
			}
		}()
	}

	if err := srv.Listen(); err != nil {
		logger.Error("failed to bind listener", err)
		os.Exit(1)
	}
	logger.Printf("event service listening on %s", srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		logger.Printf("signal received (%v), shutting down", s)
		cancel()
	}()

	if err := srv.Serve(ctx); err != nil {
		logger.Error("event server exited", err)
		os.Exit(1)
	}
}
