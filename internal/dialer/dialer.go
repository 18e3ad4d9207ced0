// Package dialer implements the Upstream Dialer: DNS resolution, TCP
// dialing (direct or via an optional SOCKS5 relay), and optional TLS with
// SNI set to the real upstream host.
package dialer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// Errors surfaced to the Forward Pipeline as the spec.md §7 taxonomy
// entries of the same name.
var (
	ErrResolutionFailed    = fmt.Errorf("resolution failed")
	ErrUpstreamUnreachable = fmt.Errorf("upstream unreachable")
	ErrTLSHandshakeFailed  = fmt.Errorf("tls handshake failed")
)

// Dialer opens upstream connections per spec.md §4.6.
type Dialer struct {
	// ConnectTimeout bounds DNS resolution + TCP connect. Zero means no
	// deadline beyond the context's own.
	ConnectTimeout time.Duration
	// Socks5Address, if non-empty, routes the TCP connection through a
	// SOCKS5 relay instead of dialing directly. Recovered from
	// original_source's socks5_server config field.
	Socks5Address string
}

// New constructs a Dialer with the given connect timeout (0 disables it)
// and optional SOCKS5 relay address.
func New(connectTimeout time.Duration, socks5Address string) *Dialer {
	return &Dialer{ConnectTimeout: connectTimeout, Socks5Address: socks5Address}
}

// Dial resolves host, opens a TCP connection to host:port, and if tlsEnabled
// performs a TLS handshake using host as the SNI/verification name.
func (d *Dialer) Dial(ctx context.Context, host string, port int, tlsEnabled bool) (net.Conn, error) {
	if d.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.ConnectTimeout)
		defer cancel()
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolutionFailed, host, err)
	}

	conn, err := d.dialTCP(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstreamUnreachable, addr, err)
	}

	if !tlsEnabled {
		return conn, nil
	}

	tlsConn := tls.Client(conn, &tls.Config{ServerName: host})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrTLSHandshakeFailed, host, err)
	}
	return tlsConn, nil
}

func (d *Dialer) dialTCP(ctx context.Context, addr string) (net.Conn, error) {
	if d.Socks5Address == "" {
		var nd net.Dialer
		return nd.DialContext(ctx, "tcp", addr)
	}

	socksDialer, err := proxy.SOCKS5("tcp", d.Socks5Address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("building socks5 dialer: %w", err)
	}
	if ctxDialer, ok := socksDialer.(proxy.ContextDialer); ok {
		return ctxDialer.DialContext(ctx, "tcp", addr)
	}
	return socksDialer.Dial("tcp", addr)
}
