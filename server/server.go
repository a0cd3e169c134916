package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/lnurld/challenge"
	"github.com/the-lightning-land/lnurld/connectivity"
	"github.com/the-lightning-land/lnurld/node"
	"golang.org/x/net/netutil"
)

const (
	defaultSweepInterval   = time.Minute
	defaultShutdownTimeout = 10 * time.Second
)

type Config struct {
	Node    node.Node
	Handler http.Handler
	// Monitor is started after the node and stopped before it.
	Monitor  *connectivity.Monitor
	Registry *challenge.Registry
	// SweepInterval is how often expired challenges are reclaimed.
	SweepInterval time.Duration
	Listeners     []net.Addr
	// MaxConnections caps concurrent connections per listener, zero means no cap.
	MaxConnections  int
	ShutdownTimeout time.Duration
	Logger          Logger
}

// Server is the central controller of the daemon. It owns the lifecycle of
// the node, the connectivity monitor, the challenge sweeper and the http
// listeners.
type Server struct {
	node            node.Node
	handler         http.Handler
	monitor         *connectivity.Monitor
	registry        *challenge.Registry
	sweepInterval   time.Duration
	addrs           []net.Addr
	maxConnections  int
	shutdownTimeout time.Duration
	log             Logger

	mu          sync.Mutex
	listeners   []net.Listener
	stopSweeper context.CancelFunc

	ready        chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once
}

func New(config *Config) *Server {
	server := &Server{
		node:            config.Node,
		handler:         config.Handler,
		monitor:         config.Monitor,
		registry:        config.Registry,
		sweepInterval:   config.SweepInterval,
		addrs:           config.Listeners,
		maxConnections:  config.MaxConnections,
		shutdownTimeout: config.ShutdownTimeout,
		log:             config.Logger,
		ready:           make(chan struct{}),
		done:            make(chan struct{}),
	}

	if server.sweepInterval == 0 {
		server.sweepInterval = defaultSweepInterval
	}

	if server.shutdownTimeout == 0 {
		server.shutdownTimeout = defaultShutdownTimeout
	}

	if server.log == nil {
		server.log = noopLogger{}
	}

	return server
}

// Ready is closed once all listeners accept connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addrs returns the bound addresses of the listeners.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, lis := range s.listeners {
		addrs = append(addrs, lis.Addr())
	}

	return addrs
}

// Run starts all components and blocks until Shutdown is called.
func (s *Server) Run() error {
	if len(s.addrs) == 0 {
		return errors.New("no listeners configured")
	}

	s.log.Infof("Starting node...")

	// an unreachable node is reported as offline by the monitor
	if err := s.node.Start(); err != nil {
		s.log.Errorf("Could not connect to lightning node: %v", err)
	}

	if s.monitor != nil {
		s.monitor.Start()
		s.log.Infof("Node is %v", s.monitor.CurrentState())
	}

	listeners := make([]net.Listener, 0, len(s.addrs))
	for _, addr := range s.addrs {
		lis, err := net.Listen(addr.Network(), addr.String())
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			s.stopComponents()
			return errors.Errorf("Unable to listen on %v: %v", addr, err)
		}

		if s.maxConnections > 0 {
			lis = netutil.LimitListener(lis, s.maxConnections)
		}

		listeners = append(listeners, lis)
	}

	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	sweeperCtx, stopSweeper := context.WithCancel(context.Background())

	s.mu.Lock()
	s.listeners = listeners
	s.stopSweeper = stopSweeper
	s.mu.Unlock()

	if s.registry != nil {
		go s.registry.RunSweeper(sweeperCtx, s.sweepInterval)
	}

	for _, lis := range listeners {
		s.log.Infof("Listening on %v", lis.Addr())

		go func(lis net.Listener) {
			err := httpServer.Serve(lis)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Errorf("Could not serve api: %v", err)
			}
		}(lis)
	}

	close(s.ready)

	<-s.done

	s.log.Infof("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		s.log.Errorf("Could not gracefully shut down api: %v", err)
	}

	s.stopComponents()

	return nil
}

func (s *Server) stopComponents() {
	s.mu.Lock()
	stopSweeper := s.stopSweeper
	s.mu.Unlock()

	if stopSweeper != nil {
		stopSweeper()
	}

	if s.monitor != nil {
		s.monitor.Stop()
	}

	if err := s.node.Stop(); err != nil {
		s.log.Warnf("Could not properly shut down node: %v", err)
	}
}

// Shutdown makes Run stop accepting connections, wait for running requests
// and stop all components.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.done)
	})
}
