// Package forward implements the Forward Pipeline: the per-request state
// machine tying the Authorizer, Domain Rewriter, Body Codec, and Upstream
// Dialer together, per spec.md §4.7.
package forward

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/webjingzi/mirror/internal/alias"
	"github.com/webjingzi/mirror/internal/auth"
	"github.com/webjingzi/mirror/internal/codec"
	"github.com/webjingzi/mirror/internal/dialer"
	"github.com/webjingzi/mirror/internal/log"
	"github.com/webjingzi/mirror/internal/rewrite"
)

// LoopSentinel is the loop-prevention header set on every upstream request.
const LoopSentinel = "X-Web-Jingzi"

// Pipeline is the Forward State (spec.md §3): the immutable, process-wide
// value shared read-only across every request handler.
type Pipeline struct {
	Table      *alias.Table
	Authorizer *auth.Authorizer
	UseHTTPS   map[string]bool
	Dialer     *dialer.Dialer

	// RequestTimeout bounds the whole per-request upstream exchange. Zero
	// means no limit, per spec.md §5's default.
	RequestTimeout time.Duration
}

// New constructs a Pipeline.
func New(table *alias.Table, authorizer *auth.Authorizer, useHTTPS []string, d *dialer.Dialer, requestTimeout time.Duration) *Pipeline {
	forced := make(map[string]bool, len(useHTTPS))
	for _, h := range useHTTPS {
		forced[h] = true
	}
	return &Pipeline{
		Table:          table,
		Authorizer:     authorizer,
		UseHTTPS:       forced,
		Dialer:         d,
		RequestTimeout: requestTimeout,
	}
}

// ServeHTTP implements http.Handler. It is the Listener's per-connection
// dispatch target.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	aliasHost := stripPort(r.Host)

	// Step 1: Authorization gate. May short-circuit with a login page or
	// login result.
	if p.Authorizer != nil && p.Authorizer.IsProtected(aliasHost) {
		if p.Authorizer.Gate(w, r, aliasHost) {
			return
		}
	}

	// Step 2: Loop check.
	if r.Header.Get(LoopSentinel) != "" {
		http.Error(w, "may be circular request", http.StatusInternalServerError)
		return
	}

	// Step 3: Query rewrite -- restore-substitute values only, rejoin k=v&....
	rewrittenQuery := rewrite.RestoreQuery(p.Table, r.URL.RawQuery)

	// Step 4: Scheme decision.
	scheme := p.decideScheme(aliasHost, r)

	// Step 5: Path rewrite.
	rewrittenPath := rewrite.Restore(p.Table, r.URL.Path)

	// Step 6: URL assembly -- restore the host, set URL host and Host header.
	realHost, ok := p.Table.RealFor(aliasHost)
	if !ok {
		realHost = rewrite.Restore(p.Table, aliasHost)
	}

	rl := log.Request(aliasHost, realHost, r.Method)

	upstreamURL := &url.URL{
		Scheme:   scheme,
		Host:     realHost,
		Path:     rewrittenPath,
		RawQuery: rewrittenQuery,
	}

	// Step 7: Inbound header rewrite.
	outboundHeader := r.Header.Clone()
	for _, h := range rewrite.InboundHeaders {
		if v := outboundHeader.Get(h); v != "" {
			outboundHeader.Set(h, rewrite.Restore(p.Table, v))
		}
	}
	outboundHeader.Set("Host", realHost)
	outboundHeader.Set(LoopSentinel, "true")

	// Step 8: Inbound body rewrite.
	body, err := p.rewriteInboundBody(rl, r)
	if err != nil {
		rl.Error("forward: inbound body rewrite failed", "error", err)
	}

	ctx := r.Context()
	var cancel context.CancelFunc
	if p.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.RequestTimeout)
		defer cancel()
	}

	outReq, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL.String(), bytes.NewReader(body))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusInternalServerError)
		return
	}
	outReq.Header = outboundHeader
	outReq.ContentLength = int64(len(body))

	// Step 9 + 10: Dial upstream, send request, receive response.
	resp, err := p.do(ctx, realHost, scheme, outReq)
	if err != nil {
		rl.Error("forward: upstream exchange failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	// Step 11: Outbound header rewrite.
	for _, h := range rewrite.OutboundHeaders {
		values := resp.Header.Values(h)
		if len(values) == 0 {
			continue
		}
		resp.Header.Del(h)
		for _, v := range values {
			resp.Header.Add(h, rewrite.Replace(p.Table, v))
		}
	}

	copyHeader(w.Header(), resp.Header)

	// Step 12: 304 fast-path.
	if resp.StatusCode == http.StatusNotModified {
		w.WriteHeader(resp.StatusCode)
		rl.Info("forward: request complete", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
		return
	}

	// Step 13: Body transform.
	respBody, err := p.rewriteOutboundBody(rl, resp)
	if err != nil {
		rl.Error("forward: outbound body rewrite failed", "error", err)
		respBody, _ = io.ReadAll(resp.Body)
	}

	if w.Header().Get("Content-Length") != "" {
		w.Header().Set("Content-Length", strconv.Itoa(len(respBody)))
	}

	// Step 14: Return response to the Listener for serialization.
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
	rl.Info("forward: request complete", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
}

func (p *Pipeline) decideScheme(aliasHost string, r *http.Request) string {
	if p.UseHTTPS[aliasHost] {
		return "https"
	}
	if s := r.Header.Get("X-Scheme"); s != "" {
		return s
	}
	if r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	return "http"
}

func (p *Pipeline) rewriteInboundBody(rl *slog.Logger, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("reading inbound body: %w", err)
	}
	if !rewrite.IsRewritableMediaType(r.Header.Get("Content-Type")) {
		return raw, nil
	}
	if !isValidUTF8(raw) {
		rl.Warn("forward: inbound body is not valid utf-8, passing through unchanged")
		return raw, nil
	}
	rewritten := rewrite.Restore(p.Table, string(raw))
	return []byte(rewritten), nil
}

func (p *Pipeline) rewriteOutboundBody(rl *slog.Logger, resp *http.Response) ([]byte, error) {
	contentType := resp.Header.Get("Content-Type")
	if !rewrite.IsRewritableMediaType(contentType) {
		return io.ReadAll(resp.Body)
	}

	encoding := resp.Header.Get("Content-Encoding")

	var raw []byte
	var err error
	if encoding != "" && codec.Supported(encoding) {
		raw, err = codec.Decode(encoding, resp.Body)
	} else {
		if encoding != "" {
			rl.Warn("forward: unrecognized content-encoding, passing through", "encoding", encoding)
			return io.ReadAll(resp.Body)
		}
		raw, err = io.ReadAll(resp.Body)
	}
	if err != nil {
		return nil, err
	}

	if !isValidUTF8(raw) {
		rl.Warn("forward: outbound body is not valid utf-8, passing through unchanged")
		return raw, nil
	}

	rewritten := rewrite.Replace(p.Table, string(raw))

	if encoding == "" {
		return []byte(rewritten), nil
	}
	return codec.Encode(encoding, []byte(rewritten))
}

// do performs the upstream HTTP/1.1 exchange using the Pipeline's Dialer so
// that the connect/TLS steps of §4.6 run for every request without relying
// on http.Transport's own dialing defaults.
func (p *Pipeline) do(ctx context.Context, realHost, scheme string, outReq *http.Request) (*http.Response, error) {
	host, portStr, err := net.SplitHostPort(realHost)
	if err != nil {
		host = realHost
		portStr = ""
	}
	port, perr := strconv.Atoi(portStr)
	if perr != nil {
		if scheme == "https" {
			port = 443
		} else {
			port = 80
		}
	}

	transport := &http.Transport{
		// Keep the upstream Content-Encoding intact so the Body Codec can
		// decode and re-encode with the same algorithm.
		DisableCompression: true,
		DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
			return p.Dialer.Dial(dialCtx, host, port, false)
		},
		DialTLSContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
			return p.Dialer.Dial(dialCtx, host, port, true)
		},
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return client.Do(outReq)
}

func copyHeader(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}
