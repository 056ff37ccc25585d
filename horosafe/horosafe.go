// Package horosafe holds the network safety checks shared by the feed
// fetcher and the scoring transport: URL validation (SSRF), bounded body
// reads and content-type screening.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/url"
	"strings"
)

// MaxResponseBody is the default cap for HTTP response body reads (1 MiB).
const MaxResponseBody int64 = 1 << 20

var (
	// ErrSSRF is returned when a URL targets a private or loopback address.
	ErrSSRF = errors.New("horosafe: URL targets a private or loopback address")
	// ErrUnsafeScheme is returned for non-HTTP(S) URLs.
	ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")
	// ErrResponseTooLarge is returned by LimitedReadAll when the cap is hit.
	ErrResponseTooLarge = errors.New("horosafe: response too large")
)

var privateNets = mustCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"fc00::/7",
)

// ValidateURL checks that rawURL is http(s), has a host, and does not
// resolve to a private or loopback address.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("horosafe: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrSSRF
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		// Unresolvable hosts fail later at dial time with a transport error.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, maxBytes)
	}
	return data, nil
}

// IsTextContentType reports whether a Content-Type header announces a
// textual body (text/*, XML, JSON, RSS/Atom). An empty header is accepted:
// many feed servers omit it.
func IsTextContentType(header string) bool {
	if strings.TrimSpace(header) == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	return strings.HasSuffix(mt, "/xml") || strings.HasSuffix(mt, "+xml") ||
		strings.HasSuffix(mt, "/json") || strings.HasSuffix(mt, "+json")
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func mustCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("horosafe: bad CIDR " + c)
		}
		nets = append(nets, n)
	}
	return nets
}
