package event

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/postalcore/postal/framework/limiters"
	"github.com/postalcore/postal/framework/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Config configures a Server, the Go-native equivalent of event.cpp's
// resource-file options (event_listen_ip, event_listen_port,
// event_threads_num, event_acl.txt's path).
type Config struct {
	ListenAddr string
	ACLPath    string
	// MaxConns bounds concurrent not-yet-LISTENing connections, the same
	// quantity ev_acceptwork compares the enqueue list's length against.
	MaxConns int
	// PublishBurst/PublishInterval bound how fast one connection may
	// submit publish-verb commands before it is made to wait, guarding
	// the registry fan-out against one runaway publisher. Zero burst
	// disables the limit.
	PublishBurst    int
	PublishInterval time.Duration
	Log             log.Logger
}

// Server is the event fan-out service: one acceptor, a semaphore-bounded
// set of pre-LISTEN connection goroutines, one goroutine per LISTEN
// subscriber, and a periodic scanner reclaiming idle hosts and interest
// entries. ev_acceptwork/ev_enqwork/ev_deqwork/ev_scanwork translated.
type Server struct {
	cfg      Config
	acl      *acl
	registry *registry
	metrics  serverMetrics

	listener net.Listener
	admit    chan struct{} // size MaxConns, bounds pre-LISTEN connections

	subsWG sync.WaitGroup
}

// NewServer loads the ACL file and returns a Server ready for Serve.
func NewServer(cfg Config) (*Server, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 100
	}
	a, err := loadACL(cfg.ACLPath)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		acl:      a,
		registry: newRegistry(),
		metrics:  newMetrics(),
		admit:    make(chan struct{}, cfg.MaxConns),
	}, nil
}

// Collector exposes the FIFO-drop counter for registration with a
// prometheus.Registry.
func (s *Server) Collector() prometheus.Collector {
	return s.metrics
}

// Listen binds cfg.ListenAddr, so callers that need the resolved address
// (tests binding to ":0") can read it via Addr before Serve blocks.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Addr returns the bound listener's address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the acceptor and scanner goroutines under an errgroup, the
// Go counterpart of term_handler's atomic stop flag plus
// pthread_kill(SIGALRM): ctx cancellation here does the same job without
// a signal trick. It blocks until ctx is canceled or a goroutine returns
// an error, then closes the listener and waits for every subscriber
// goroutine to drain. Serve calls Listen itself if it hasn't run yet.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.acceptLoop(ctx) })
	eg.Go(func() error { return s.scanLoop(ctx) })

	<-ctx.Done()
	s.listener.Close()
	err := eg.Wait()
	s.subsWG.Wait()
	return err
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		if !s.acl.allowed(conn.RemoteAddr()) {
			conn.Write([]byte(replyAccessDeny))
			conn.Close()
			continue
		}

		select {
		case s.admit <- struct{}{}:
		default:
			conn.Write([]byte(replyMaxConn))
			conn.Close()
			continue
		}

		go s.serveEnqueue(ctx, conn, s.newPublishLimiter(), func() { <-s.admit })
	}
}

// newPublishLimiter returns a fresh per-connection publish-rate limiter,
// or nil when PublishBurst is unset (no limit applied).
func (s *Server) newPublishLimiter() *limiters.Rate {
	if s.cfg.PublishBurst <= 0 {
		return nil
	}
	interval := s.cfg.PublishInterval
	if interval <= 0 {
		interval = time.Second
	}
	return limiters.NewRate(s.cfg.PublishBurst, interval)
}

// scanLoop periodically reaps idle hosts and stale interest entries,
// ev_scanwork's SCAN_INTERVAL sweep.
func (s *Server) scanLoop(ctx context.Context) error {
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.registry.reap(time.Now())
		}
	}
}
