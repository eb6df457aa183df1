package proxy

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	"quarantine-proxy/internal/config"
)

// DialUpstream connects to the configured upstream IMAP server, reads and
// validates its greeting line, and returns the connection, a buffered
// reader positioned just after the greeting, and the greeting line itself
// so the caller can relay it to the client verbatim.
func DialUpstream(up config.UpstreamConfig) (net.Conn, *bufio.Reader, string, error) {
	return dialUpstream(up, nil)
}

// dialUpstream is the internal implementation; tlsCfg overrides the TLS
// config when non-nil, which tests use to trust a self-signed cert.
func dialUpstream(up config.UpstreamConfig, tlsCfg *tls.Config) (net.Conn, *bufio.Reader, string, error) {
	addr := up.Addr()

	var conn net.Conn
	if up.TLS {
		cfg := tlsCfg
		if cfg == nil {
			cfg = &tls.Config{ServerName: up.Host}
		}
		c, err := tls.Dial("tcp", addr, cfg)
		if err != nil {
			return nil, nil, "", fmt.Errorf("tls dial %s: %w", addr, err)
		}
		conn = c
	} else {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, nil, "", fmt.Errorf("dial %s: %w", addr, err)
		}
		conn = c
	}

	r := bufio.NewReader(conn)

	greeting, err := r.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, nil, "", fmt.Errorf("read greeting: %w", err)
	}
	if !strings.HasPrefix(greeting, "* OK") && !strings.HasPrefix(greeting, "* PREAUTH") {
		conn.Close()
		return nil, nil, "", fmt.Errorf("unexpected greeting: %s", strings.TrimRight(greeting, "\r\n"))
	}

	return conn, r, greeting, nil
}
