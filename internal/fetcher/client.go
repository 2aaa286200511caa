package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// maxRedirects caps the redirect chain followed for one request.
const maxRedirects = 10

// newHTTPClient builds the default crawling client.
// If proxyAddress is not empty, every connection goes through that proxy.
func newHTTPClient(timeout time.Duration, proxyAddress string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 30 * time.Second

	if proxyAddress != "" {
		if err := configureProxy(transport, proxyAddress); err != nil {
			return nil, err
		}
	}

	// cookiejar.New only fails with invalid options.
	jar, _ := cookiejar.New(nil) //nolint:errcheck

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// dialContext adapts a proxy.Dialer to http.Transport.DialContext.
func dialContext(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}

// configureProxy routes transport through the proxy at address.
//
// Accepted forms are "http://host:port", "https://host:port",
// "socks5://[user:pass@]host:port" and a bare "host:port", which is
// treated as SOCKS5.
func configureProxy(transport *http.Transport, address string) error {
	if !strings.Contains(address, "://") {
		address = "socks5://" + address
	}
	proxyURL, err := url.Parse(address)
	if err != nil {
		// The url.Error text repeats the address, credentials included.
		return fmt.Errorf("%w: %v", ErrInvalidProxyAddress, errors.Unwrap(err))
	}
	if !isValidProxyHost(proxyURL.Host) {
		return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, proxyURL.Redacted())
	}

	switch strings.ToLower(proxyURL.Scheme) {
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if proxyURL.User != nil {
			password, _ := proxyURL.User.Password()
			auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		transport.DialContext = dialContext(dialer)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedProxyScheme, proxyURL.Scheme)
	}
	return nil
}

// isValidProxyHost checks if the address is in "host:port" format.
func isValidProxyHost(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// custom headers and cookies into every request, redirects included.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
