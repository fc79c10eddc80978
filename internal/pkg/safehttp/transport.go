// Package safehttp builds the outbound transport shared by actions and deliveries.
package safehttp

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// Options configures NewTransport.
type Options struct {
	// ConnectTimeout bounds dialing; 0 uses 10s
	ConnectTimeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification
	InsecureSkipVerify bool

	// BlockPrivateNetworks rejects connections to loopback, private, link-local and
	// unspecified addresses, checked after DNS resolution
	BlockPrivateNetworks bool
}

// NewTransport returns a transport configured by opts.
func NewTransport(opts Options) *http.Transport {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	if opts.BlockPrivateNetworks {
		dialer.Control = denyPrivate
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = timeout
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return transport
}

// ErrPrivateAddress is returned when a dial targets a blocked address.
type ErrPrivateAddress struct {
	Addr netip.Addr
}

func (e *ErrPrivateAddress) Error() string {
	return fmt.Sprintf("access to private IP %s is denied", e.Addr)
}

// IsPrivate reports whether addr is loopback, private, link-local or unspecified.
func IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified()
}

// denyPrivate is a dialer Control hook; address is the resolved IP being dialed.
func denyPrivate(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("failed to parse dial address %q: %w", address, err)
	}
	if IsPrivate(ap.Addr()) {
		return &ErrPrivateAddress{Addr: ap.Addr()}
	}
	return nil
}

// Client returns an http.Client using transport with an overall timeout.
func Client(transport http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{Transport: transport, Timeout: timeout}
}
