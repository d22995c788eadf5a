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

// Command postald is the combined daemon: it starts the message-dequeue
// engine, the event fan-out service, and an IMAP listener dispatching
// through imapcore, the same "one executable, several listeners" shape
// cmd/maddy's own run command takes for SMTP/IMAP/queue.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/postalcore/postal/auth"
	"github.com/postalcore/postal/event"
	"github.com/postalcore/postal/framework/hooks"
	"github.com/postalcore/postal/framework/log"
	"github.com/postalcore/postal/framework/module"
	"github.com/postalcore/postal/imapcore"
	"github.com/postalcore/postal/internal/config"
	"github.com/postalcore/postal/midb"
	_ "github.com/postalcore/postal/queue"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		queueDir   = flag.String("queue-dir", "/var/spool/postal/queue", "queue directory (mess/, save/, token.ipc)")
		maxMemory  = flag.Int64("queue-max-memory", 64*1024*1024, "queue working-set memory cap in bytes")
		imapAddr   = flag.String("imap-listen", "0.0.0.0:1143", "address to accept IMAP connections on")
		eventAddr  = flag.String("event-listen", "127.0.0.1:33333", "address the event fan-out service listens on")
		eventACL   = flag.String("event-acl", "/etc/postal/event_acl.txt", "event service ACL file")
		eventConns = flag.Int("event-max-conns", 4096, "event service max concurrent pre-LISTEN connections")
		passFile   = flag.String("auth-pass-table", "/etc/postal/passwd", "bcrypt user:hash credential file (created on first use)")
		pubBurst   = flag.Int("event-publish-burst", 0, "per-connection publish-verb burst size (0 disables rate limiting)")
		pubEvery   = flag.Duration("event-publish-interval", time.Second, "token replenishment interval for event-publish-burst")
	)
	flag.Parse()

	logger := log.Logger{Name: "postald", Out: log.DefaultLogger.Out}

	qmod, err := startQueueModule(*queueDir, *maxMemory)
	if err != nil {
		logger.Error("failed to open queue", err)
		os.Exit(1)
	}

	evSrv, err := event.NewServer(event.Config{
		ListenAddr:      *eventAddr,
		ACLPath:         *eventACL,
		MaxConns:        *eventConns,
		PublishBurst:    *pubBurst,
		PublishInterval: *pubEvery,
		Log:             log.Logger{Name: "postald/event", Out: logger.Out},
	})
	if err != nil {
		logger.Error("failed to construct event server", err)
		os.Exit(1)
	}
	if err := evSrv.Listen(); err != nil {
		logger.Error("failed to bind event listener", err)
		os.Exit(1)
	}

	imapLn, err := net.Listen("tcp", *imapAddr)
	if err != nil {
		logger.Error("failed to bind IMAP listener", err)
		os.Exit(1)
	}

	index := midb.NewMemIndex()
	authn, err := auth.LoadPassTableFile(*passFile)
	if err != nil {
		logger.Error("failed to load credential file", err)
		os.Exit(1)
	}
	if users, _ := authn.ListUsers(); len(users) == 0 {
		logger.Printf("credential file %s has no users yet; postald will reject all LOGIN attempts until one is added", *passFile)
	}
	evClient, err := event.Dial(*eventAddr, "postald-imap")
	if err != nil {
		logger.Error("failed to connect IMAP session publisher to event service", err)
		os.Exit(1)
	}
	defer evClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		logger.Printf("signal received (%v), shutting down", s)
		cancel()
	}()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return evSrv.Serve(egCtx)
	})
	eg.Go(func() error {
		return serveIMAP(egCtx, imapLn, index, authn, evClient, logger)
	})

	logger.Printf("postald listening: imap=%s event=%s", *imapAddr, *eventAddr)
	if err := eg.Wait(); err != nil && egCtx.Err() == nil {
		logger.Error("postald exited with error", err)
	}

	logger.Printf("stopping module %s (%s)", qmod.Name(), qmod.InstanceName())
	hooks.RunHooks(hooks.EventShutdown)
}

// startQueueModule builds the queue module instance through the same
// factory/registry/instance path a config-file-driven maddy deployment
// uses, instead of calling queue.New directly: it goes through
// module.Get to find the "queue" factory registered by queue's own
// init(), module.RegisterInstance/RegisterAlias to publish it under both
// its instance name and the bare "queue" alias, and module.GetInstance to
// trigger Init (which opens and starts the Engine) and install the
// hooks.EventShutdown close hook. main calls hooks.RunHooks on the way out
// to run that hook.
func startQueueModule(dir string, maxMemory int64) (module.Module, error) {
	newQueue := module.Get("queue")
	if newQueue == nil {
		return nil, fmt.Errorf("no module factory registered under name %q", "queue")
	}

	inst, err := newQueue("queue", "queue.default", nil, nil)
	if err != nil {
		return nil, err
	}

	cfg := config.NewMap(config.Node{
		Name: "queue",
		Args: []string{"default"},
		Children: []config.Node{
			{Name: "location", Args: []string{dir}},
			{Name: "max_memory", Args: []string{strconv.FormatInt(maxMemory, 10)}},
		},
	})

	module.RegisterInstance(inst, cfg)
	module.RegisterAlias("queue", "queue.default")
	if !module.HasInstance("queue") {
		return nil, fmt.Errorf("queue module registration failed unexpectedly")
	}

	return module.GetInstance("queue")
}

func serveIMAP(ctx context.Context, ln net.Listener, index *midb.MemIndex, authn module.PlainAuth, pub imapcore.Publisher, logger log.Logger) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go handleIMAPConn(ctx, conn, index, authn, pub, logger)
	}
}

func handleIMAPConn(ctx context.Context, conn net.Conn, index *midb.MemIndex, authn module.PlainAuth, pub imapcore.Publisher, logger log.Logger) {
	defer conn.Close()

	sess := imapcore.NewSession(index, authn, pub)
	w := bufio.NewWriter(conn)
	w.WriteString("* OK postald IMAP4rev1 Service Ready\r\n")
	w.Flush()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), 64*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		for _, line := range sess.Handle(ctx, scanner.Text()) {
			w.WriteString(line + "\r\n")
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}
