package app

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"

	"github.com/hyperifyio/hal/internal/safety"
)

// newHighThroughputHTTPClient returns an HTTP client tuned for high parallelism
// without client-side throttling. Timeouts are kept reasonable to avoid hangs.
func newHighThroughputHTTPClient() *http.Client {
	return &http.Client{
		Transport: newTransport(&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}),
		Timeout:   60 * time.Second,
	}
}

// newPageHTTPClient returns the client used by the static fetcher. Its dialer
// refuses connections to addresses the safety gate blocks, so a DNS answer
// that changed after validation cannot reach an internal host.
func newPageHTTPClient() *http.Client {
	d := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialGuard,
	}
	t := newTransport(d)
	t.Proxy = nil
	return &http.Client{Transport: t}
}

func newTransport(d *net.Dialer) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           d.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          0,    // no global limit
		MaxIdleConnsPerHost:   1024, // large per-host pool
		MaxConnsPerHost:       0,    // unlimited
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func dialGuard(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}
	if safety.IsBlocked(ap.Addr()) {
		return fmt.Errorf("dial %s: %w", address, safety.ErrRejected)
	}
	return nil
}
