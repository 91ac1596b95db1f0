package infra

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bastionhq/bastion/internal/domain"
)

const (
	sentinelReadTimeout = 500 * time.Millisecond
	sentinelBufferSize  = 4096

	// blockedResponse is served on the plain-HTTP port. On the TLS port we
	// cannot answer without a certificate, so the connection just closes.
	blockedResponse = "HTTP/1.1 403 Forbidden\r\nContent-Type: text/html\r\nConnection: close\r\n\r\n<h1>Blocked by Bastion</h1>"
)

// Sentinel listens on loopback for traffic that the hosts-file block has
// redirected to localhost. It recovers the blocked domain from the HTTP
// Host header (plain port) or the TLS ClientHello SNI (TLS port) and
// queues InterceptEvents for the coordinator to drain each tick.
// Everything is best-effort: bind failures are logged, never fatal.
type Sentinel struct {
	httpPort int
	tlsPort  int
	clock    domain.Clock
	logger   *zap.Logger

	mu      sync.Mutex
	pending []domain.InterceptEvent
}

// NewSentinel creates a sentinel for the given loopback ports.
func NewSentinel(httpPort, tlsPort int, clock domain.Clock, logger *zap.Logger) *Sentinel {
	return &Sentinel{
		httpPort: httpPort,
		tlsPort:  tlsPort,
		clock:    clock,
		logger:   logger,
	}
}

// Run binds the listeners and serves until the context is canceled.
func (s *Sentinel) Run(ctx context.Context) {
	for _, addr := range []string{"127.0.0.1", "::1"} {
		for _, port := range []int{s.httpPort, s.tlsPort} {
			s.listenTCP(ctx, addr, port)
		}
		// QUIC probes on the TLS port: the datagram is encrypted so the
		// domain is unrecoverable, but hitting the socket at all means the
		// hosts block resolved the domain to loopback.
		s.listenUDP(ctx, addr, s.tlsPort)
	}
	<-ctx.Done()
}

// Drain returns and clears the queued intercept events.
func (s *Sentinel) Drain() []domain.InterceptEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.pending
	s.pending = nil
	return events
}

func (s *Sentinel) enqueue(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, domain.InterceptEvent{
		Target: target,
		Kind:   domain.KindSite,
		At:     s.clock.Now(),
	})
}

func (s *Sentinel) listenTCP(ctx context.Context, addr string, port int) {
	full := joinHostPort(addr, port)
	ln, err := net.Listen("tcp", full)
	if err != nil {
		s.logger.Warn("sentinel failed to bind", zap.String("addr", full), zap.Error(err))
		return
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handleConn(conn, port)
		}
	}()

	s.logger.Info("sentinel listening", zap.String("addr", full))
}

func (s *Sentinel) listenUDP(ctx context.Context, addr string, port int) {
	full := joinHostPort(addr, port)
	conn, err := net.ListenPacket("udp", full)
	if err != nil {
		s.logger.Debug("sentinel failed to bind udp", zap.String("addr", full), zap.Error(err))
		return
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		buf := make([]byte, sentinelBufferSize)
		for {
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			if n > 0 {
				s.enqueue("quic")
			}
		}
	}()
}

// handleConn reads the first packet and extracts the blocked domain.
func (s *Sentinel) handleConn(conn net.Conn, port int) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(sentinelReadTimeout))
	buf := make([]byte, sentinelBufferSize)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}
	data := buf[:n]

	var target string
	if port == s.tlsPort {
		target = parseSNI(data)
	} else {
		target = parseHostHeader(data)
	}
	if target == "" {
		return
	}

	s.logger.Info("intercepted blocked request", zap.String("domain", target))
	s.enqueue(target)

	if port == s.httpPort {
		conn.SetWriteDeadline(time.Now().Add(sentinelReadTimeout))
		_, _ = conn.Write([]byte(blockedResponse))
	}
}

func joinHostPort(addr string, port int) string {
	return net.JoinHostPort(addr, fmt.Sprintf("%d", port))
}

// parseHostHeader pulls the Host header out of a raw HTTP request.
func parseHostHeader(data []byte) string {
	for _, line := range strings.Split(string(data), "\r\n") {
		if len(line) > 5 && strings.EqualFold(line[:5], "host:") {
			host := strings.TrimSpace(line[5:])
			if h, _, err := net.SplitHostPort(host); err == nil {
				return h
			}
			return host
		}
	}
	return ""
}

// parseSNI extracts the server name from a TLS ClientHello.
// Minimal parser: walks the handshake to the server_name extension.
func parseSNI(data []byte) string {
	// record type 0x16 (handshake), handshake type 0x01 (ClientHello)
	if len(data) < 44 || data[0] != 0x16 || data[5] != 0x01 {
		return ""
	}

	// Record header (5) + handshake header (4) + version (2) + random (32)
	// puts the session-id length byte at offset 43.
	pos := 43
	sessionIDLen := int(data[pos])
	pos += 1 + sessionIDLen
	if pos+2 > len(data) {
		return ""
	}

	// Cipher suites.
	cipherLen := int(data[pos])<<8 | int(data[pos+1])
	pos += 2 + cipherLen
	if pos+1 > len(data) {
		return ""
	}

	// Compression methods.
	compressionLen := int(data[pos])
	pos += 1 + compressionLen
	if pos+2 > len(data) {
		return ""
	}

	// Extensions.
	pos += 2
	for pos+4 <= len(data) {
		extType := int(data[pos])<<8 | int(data[pos+1])
		extLen := int(data[pos+2])<<8 | int(data[pos+3])
		pos += 4

		if extType == 0x0000 { // server_name
			if pos+5 > len(data) {
				return ""
			}
			// Skip server name list length, check name type (0 = host_name).
			if data[pos+2] != 0x00 {
				return ""
			}
			nameLen := int(data[pos+3])<<8 | int(data[pos+4])
			if pos+5+nameLen > len(data) {
				return ""
			}
			return string(data[pos+5 : pos+5+nameLen])
		}
		pos += extLen
	}
	return ""
}
