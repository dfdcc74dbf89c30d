package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/livehls/extract"
	"github.com/use-agent/livehls/models"
)

// ChromeUA is the desktop browser User-Agent sent by every static fetch.
const ChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBody caps how much of a response body is read.
const maxBody = 10 << 20

// HTTPEngine is the static tier: a plain GET with a fixed browser-like
// header profile and the raw body as the result. It holds no per-request
// state, so its sessions are free to open and close.
type HTTPEngine struct {
	client *http.Client
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection, so the
	// server must never be offered it.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
// proxy, if non-empty, is an http(s) proxy URL; proxied connections use the
// standard TLS stack because the transport tunnels them itself.
func NewHTTPEngine(proxy string) *HTTPEngine {
	transport := &http.Transport{
		DialTLSContext:      dialTLSChrome,
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return newHTTPEngine(&http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	})
}

func newHTTPEngine(client *http.Client) *HTTPEngine {
	return &HTTPEngine{client: client}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) Tier() Tier { return TierStatic }

// Open returns a session sharing the engine's client. It never fails.
func (e *HTTPEngine) Open(ctx context.Context) (Session, error) {
	return httpSession{engine: e}, nil
}

type httpSession struct {
	engine *HTTPEngine
}

func (s httpSession) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	return s.engine.Fetch(ctx, req)
}

func (s httpSession) Close(bool) {}

// Fetch performs one GET. Only 2xx responses succeed; every other status and
// every transport fault is returned as a *models.ResolveError.
func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, models.NewResolveError(models.ErrCodeTransport, "build request for "+req.URL, err)
	}

	httpReq.Header.Set("User-Agent", ChromeUA)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	// Identity only: some hosting platforms fail to decompress brotli bodies.
	httpReq.Header.Set("Accept-Encoding", "identity")
	httpReq.Header.Set("Connection", "keep-alive")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, transportError(err, req.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, models.NewStatusError(resp.StatusCode, req.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, transportError(err, req.URL)
	}

	result := &FetchResult{
		HTML:       string(body),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		EngineName: e.Name(),
	}
	switch req.Directive {
	case ReadCanonical:
		result.Link, _ = extract.LinkHref(result.HTML, extract.CanonicalSelector)
	case ReadSelectorHref:
		result.Link, _ = extract.LinkHref(result.HTML, req.Selector)
	}
	return result, nil
}

// transportError classifies a network fault. Deadline overruns get their own
// code so the API can answer 504 instead of 500.
func transportError(err error, target string) *models.ResolveError {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewResolveError(models.ErrCodeTimeout, "timed out fetching "+target, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.NewResolveError(models.ErrCodeTimeout, "timed out fetching "+target, err)
	}
	return models.NewResolveError(models.ErrCodeTransport, "failed to fetch "+target, err)
}

// dialTLSChrome establishes a TLS connection using the Chrome h1 fingerprint.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}
