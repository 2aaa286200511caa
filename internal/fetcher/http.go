package fetcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/nao1215/pcrawl/internal/urlnorm"
)

const (
	// DefaultUserAgent identifies the crawler.
	DefaultUserAgent = "pcrawl/1.0 (+https://github.com/nao1215/pcrawl)"

	// DefaultMaxBodySize caps how much of a response body is read.
	DefaultMaxBodySize int64 = 5 * 1024 * 1024

	// DefaultTimeout is the client timeout used when no client is supplied.
	DefaultTimeout = 30 * time.Second
)

// HTTPFetcher fetches pages with an http.Client.
// It is safe for concurrent use.
type HTTPFetcher struct {
	// client performs the requests.
	client *http.Client

	// timeout is applied to the default client only.
	timeout time.Duration

	// proxyAddress routes the default client through a proxy.
	proxyAddress string

	// userAgent is sent with every request.
	userAgent string

	// cookie is a raw cookie string added to every request.
	cookie string

	// headers are added to every request.
	headers map[string]string

	// maxBodySize limits the bytes read from a response body.
	maxBodySize int64

	// anyContent returns bodies regardless of their content type.
	anyContent bool
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient uses c instead of the default client.
// WithTimeout and WithProxy have no effect on a supplied client.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// WithTimeout sets the timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.timeout = d
	}
}

// WithProxy routes the default client through the proxy at address.
// http and https proxy URLs use an HTTP CONNECT proxy, socks5 URLs and bare
// "host:port" addresses a SOCKS5 proxy.
func WithProxy(address string) Option {
	return func(f *HTTPFetcher) {
		f.proxyAddress = address
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithCookie adds a raw cookie string (e.g., "session=abc123") to every request.
func WithCookie(cookie string) Option {
	return func(f *HTTPFetcher) {
		f.cookie = cookie
	}
}

// WithHeaders adds custom headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(f *HTTPFetcher) {
		f.headers = headers
	}
}

// WithMaxBodySize caps the number of body bytes read per response.
func WithMaxBodySize(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithAnyContentType returns bodies of every content type instead of HTML only.
func WithAnyContentType() Option {
	return func(f *HTTPFetcher) {
		f.anyContent = true
	}
}

// NewHTTPFetcher creates an HTTPFetcher.
// It returns an error if the proxy address is invalid.
func NewHTTPFetcher(opts ...Option) (*HTTPFetcher, error) {
	f := &HTTPFetcher{
		timeout:     DefaultTimeout,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.client == nil {
		client, err := newHTTPClient(f.timeout, f.proxyAddress)
		if err != nil {
			return nil, err
		}
		f.client = client
	}

	if f.cookie != "" || len(f.headers) > 0 {
		base := f.client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		client := *f.client
		client.Transport = &headerInjectingTransport{
			base:    base,
			cookie:  f.cookie,
			headers: f.headers,
		}
		f.client = &client
	}

	return f, nil
}

// Fetch performs a GET request for u.
//
// The status code is returned for every response, including non-2xx ones.
// The body is empty when the response is not HTML, unless the fetcher
// was built with WithAnyContentType.
func (f *HTTPFetcher) Fetch(ctx context.Context, u urlnorm.URL) ([]byte, int, error) {
	body, status, _, err := f.FetchResolved(ctx, u)
	return body, status, err
}

// FetchResolved is Fetch that also returns the URL the response was served
// from after redirects. The final URL is returned as sent by the server,
// trailing slash included, so relative links in the body resolve correctly.
func (f *HTTPFetcher) FetchResolved(ctx context.Context, u urlnorm.URL) ([]byte, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	finalURL := u.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if !f.anyContent && !isHTML(resp.Header.Get("Content-Type")) {
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, f.maxBodySize)) //nolint:errcheck
		return nil, resp.StatusCode, finalURL, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, finalURL, fmt.Errorf("failed to read body: %w", err)
	}
	return body, resp.StatusCode, finalURL, nil
}

// isHTML reports whether a Content-Type header value denotes HTML.
// A missing content type is treated as HTML.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
