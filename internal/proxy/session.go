package proxy

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"

	"quarantine-proxy/internal/config"
	"quarantine-proxy/internal/imap"
	"quarantine-proxy/internal/message"
	"quarantine-proxy/internal/metrics"
	"quarantine-proxy/internal/policy"
	"quarantine-proxy/internal/store"
)

// Session manages a single client connection to the proxy. It is strictly
// single-goroutine: the command loop reads one direction at a time, so no
// reader races within a session.
type Session struct {
	clientConn   net.Conn
	upstreamConn net.Conn
	clientR      *bufio.Reader
	upstreamR    *bufio.Reader

	upstream   config.UpstreamConfig
	quarantine config.QuarantineConfig
	store      *store.Store
	logger     *slog.Logger
	metrics    *metrics.Registry

	// dialUpstream allows tests to inject a fake dialer.
	dialUpstream func(config.UpstreamConfig) (net.Conn, *bufio.Reader, string, error)
}

// NewSession creates a new Session for the given client connection. It
// starts with its own private metrics registry; a server sharing one
// registry across sessions overwrites the metrics field directly.
func NewSession(clientConn net.Conn, upstream config.UpstreamConfig, quarantine config.QuarantineConfig, st *store.Store, logger *slog.Logger) *Session {
	return &Session{
		clientConn:   clientConn,
		clientR:      bufio.NewReader(clientConn),
		upstream:     upstream,
		quarantine:   quarantine,
		store:        st,
		logger:       logger,
		metrics:      metrics.New(),
		dialUpstream: DialUpstream,
	}
}

// Run executes the session lifecycle: dial upstream, relay the greeting,
// then loop over client commands until the client disconnects or logs out.
func (s *Session) Run() {
	defer func() {
		s.clientConn.Close()
		if s.upstreamConn != nil {
			s.upstreamConn.Close()
		}
	}()

	conn, r, greeting, err := s.dialUpstream(s.upstream)
	if err != nil {
		s.logger.Error("upstream dial failed", "err", err)
		fmt.Fprint(s.clientConn, "* BYE proxy could not reach upstream\r\n")
		return
	}
	s.upstreamConn = conn
	s.upstreamR = r

	if _, err := io.WriteString(s.clientConn, greeting); err != nil {
		s.logger.Debug("write greeting failed", "err", err)
		return
	}

	for {
		line, err := s.clientR.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("read from client failed", "err", err)
			}
			return
		}

		cmd, parseErr := imap.ParseCommand([]byte(line))
		if parseErr != nil {
			// Can't parse tag/verb: forward verbatim and let upstream
			// respond BAD, preserving transparency.
			s.metrics.ParseErrors.Add(1)
			if _, wErr := io.WriteString(s.upstreamConn, line); wErr != nil {
				return
			}
			continue
		}

		switch cmd.Verb {
		case "APPEND":
			if err := s.handleAppend(cmd); err != nil {
				if err != io.EOF {
					s.logger.Debug("APPEND handling failed", "err", err)
				}
				return
			}

		case "LOGOUT":
			if err := s.forwardAndRelay(cmd.Tag, cmd.Raw); err != nil && err != io.EOF {
				s.logger.Debug("LOGOUT relay failed", "err", err)
			}
			return

		default:
			if err := s.forwardAndRelay(cmd.Tag, cmd.Raw); err != nil {
				if err != io.EOF {
					s.logger.Debug("command relay failed", "verb", cmd.Verb, "err", err)
				}
				return
			}
		}
	}
}

// handleAppend implements §4.6a's APPEND interception: it reads the
// literal body directly off the client connection, decides deliver-or-
// hold, and either synthesizes a local OK or relays the command upstream.
func (s *Session) handleAppend(cmd imap.Command) error {
	n, nonSync, hasLiteral := imap.ParseLiteral(cmd.Rest)
	if !hasLiteral {
		// Legacy quoted-string APPEND body: forward verbatim, untouched.
		return s.forwardAndRelay(cmd.Tag, cmd.Raw)
	}

	if !nonSync {
		if _, err := io.WriteString(s.clientConn, "+ Ready for literal data\r\n"); err != nil {
			return err
		}
	}

	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(s.clientR, body); err != nil {
			return err
		}
	}
	// Consume the CRLF terminating the literal.
	if _, err := io.CopyN(io.Discard, s.clientR, 2); err != nil {
		return err
	}

	meta := message.Inspect(body)
	if policy.Decide(meta, s.quarantine) {
		s.store.Insert(body, meta)
		s.metrics.AppendsHeld.Add(1)
		s.logger.Info("APPEND held", "subject", meta.Subject, "amount", meta.Amount)
		_, err := fmt.Fprintf(s.clientConn, "%s OK APPEND completed (held by proxy)\r\n", cmd.Tag)
		return err
	}
	s.metrics.AppendsDelivered.Add(1)

	if _, err := s.upstreamConn.Write(cmd.Raw); err != nil {
		return err
	}
	if !nonSync {
		// The client already received the proxy's own continuation before
		// the body was read, so upstream's continuation is consumed here.
		if _, err := s.upstreamR.ReadString('\n'); err != nil {
			return err
		}
	}
	if n > 0 {
		if _, err := s.upstreamConn.Write(body); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(s.upstreamConn, "\r\n"); err != nil {
		return err
	}

	return s.relayUntilTagged(cmd.Tag)
}

// forwardAndRelay sends line to upstream, transparently forwarding any
// literal-bearing continuation lines, then relays upstream's response
// until the tagged completion for tag arrives.
func (s *Session) forwardAndRelay(tag string, line []byte) error {
	for {
		n, nonSync, hasLiteral := imap.ParseLiteral(line)

		if _, err := s.upstreamConn.Write(line); err != nil {
			return err
		}

		if !hasLiteral {
			return s.relayUntilTagged(tag)
		}

		if !nonSync {
			contLine, err := s.upstreamR.ReadString('\n')
			if err != nil {
				return err
			}
			if _, err := io.WriteString(s.clientConn, contLine); err != nil {
				return err
			}
		}

		if n > 0 {
			if _, err := io.CopyN(s.upstreamConn, s.clientR, n); err != nil {
				return err
			}
		}

		next, err := s.clientR.ReadString('\n')
		if err != nil {
			return err
		}
		line = []byte(next)
	}
}

// relayUntilTagged reads upstream lines one at a time and forwards each
// to the client until a line begins with "tag ", the tagged completion.
func (s *Session) relayUntilTagged(tag string) error {
	prefix := tag + " "
	for {
		line, err := s.upstreamR.ReadString('\n')
		if len(line) > 0 {
			if _, wErr := io.WriteString(s.clientConn, line); wErr != nil {
				return wErr
			}
		}
		if err != nil {
			return err
		}
		if len(line) >= len(prefix) && line[:len(prefix)] == prefix {
			s.metrics.CommandsRelayed.Add(1)
			return nil
		}
	}
}
