package proxy

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"quarantine-proxy/internal/config"
	"quarantine-proxy/internal/metrics"
	"quarantine-proxy/internal/store"
)

// shutdownGrace bounds how long Close waits for in-flight sessions to
// finish before returning.
const shutdownGrace = 30 * time.Second

// Server listens for incoming client connections on a cleartext and/or an
// implicit-TLS address and spawns a Session per accepted connection.
type Server struct {
	cfg   *config.Config
	store *store.Store

	logger  *slog.Logger
	metrics *metrics.Registry

	mu        sync.Mutex
	listeners []net.Listener
	wg        sync.WaitGroup
	closed    chan struct{}
	closeOnce sync.Once
}

// NewServer creates a new Server serving cfg's upstream and quarantine
// settings, backed by st.
func NewServer(cfg *config.Config, st *store.Store, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		logger:  logger,
		metrics: metrics.New(),
		closed:  make(chan struct{}),
	}
}

// Metrics returns the server's shared counter registry.
func (s *Server) Metrics() *metrics.Registry {
	return s.metrics
}

// ListenAndServe binds the configured cleartext and/or TLS listeners and
// blocks serving connections until Close is called. It returns once all
// listeners have stopped.
func (s *Server) ListenAndServe() error {
	var toServe []net.Listener

	if s.cfg.Server.UnsecurePort > 0 {
		l, err := net.Listen("tcp", s.cfg.Server.IMAPAddr())
		if err != nil {
			return err
		}
		toServe = append(toServe, l)
	}

	if s.cfg.Server.SecurePort > 0 {
		cert, err := tls.LoadX509KeyPair(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
		if err != nil {
			for _, l := range toServe {
				l.Close()
			}
			return err
		}
		tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
		l, err := tls.Listen("tcp", s.cfg.Server.IMAPTLSAddr(), tlsCfg)
		if err != nil {
			for _, l := range toServe {
				l.Close()
			}
			return err
		}
		toServe = append(toServe, l)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(toServe))
	for _, l := range toServe {
		wg.Add(1)
		go func(l net.Listener) {
			defer wg.Done()
			errs <- s.Serve(l)
		}(l)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Serve accepts connections on l, spawning a session goroutine per
// connection, until l is closed.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		sessLogger := s.logger.With(
			slog.Group("conn", "remote", conn.RemoteAddr().String(), "local", conn.LocalAddr().String()),
			slog.Group("account", "upstream", s.cfg.Upstream.Addr()),
		)
		sessLogger.Info("new connection")

		sess := NewSession(conn, s.cfg.Upstream, s.cfg.Quarantine, s.store, sessLogger)
		sess.metrics = s.metrics

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.Run()
		}()
	}
}

// Close shuts down all listeners, causing Serve/ListenAndServe to return,
// and waits up to shutdownGrace for in-flight sessions to finish.
func (s *Server) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.Lock()
		listeners := s.listeners
		s.mu.Unlock()

		for _, l := range listeners {
			if err := l.Close(); err != nil && closeErr == nil {
				closeErr = err
			}
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(shutdownGrace):
			s.logger.Warn("shutdown grace period elapsed with sessions still active")
		}

		snap := s.metrics.Snapshot()
		s.logger.Info("final metrics",
			"commands_relayed", snap.CommandsRelayed,
			"appends_held", snap.AppendsHeld,
			"appends_delivered", snap.AppendsDelivered,
			"parse_errors", snap.ParseErrors,
		)
	})
	return closeErr
}
