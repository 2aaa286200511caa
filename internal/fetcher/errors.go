package fetcher

import "errors"

var (
	// ErrInvalidProxyAddress is returned when the proxy address has no
	// "host:port" with a port between 1 and 65535.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected [scheme://]host:port")

	// ErrUnsupportedProxyScheme is returned for proxy schemes other than
	// http, https and socks5.
	ErrUnsupportedProxyScheme = errors.New("unsupported proxy scheme")
)
