package security

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"webscout/internal/domain"
)

// blockedPrefixes are loopback, private, link-local, shared and reserved ranges
// that fetched pages must never reach.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("ff00::/8"),
}

// IsPrivateIP reports whether ip is in a blocked range. IPv4-mapped IPv6
// addresses are checked as IPv4.
func IsPrivateIP(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return true
	}
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ValidateURL rejects non-http(s) URLs, URLs without a host, and literal IPs in
// blocked ranges. Hostnames are checked at dial time by SafeDialer.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return domain.NewDomainError("ValidateURL", domain.ErrSSRFBlocked, fmt.Sprintf("invalid URL: %v", err))
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return domain.NewDomainError("ValidateURL", domain.ErrSSRFBlocked, "missing URL scheme, only http/https allowed")
	default:
		return domain.NewDomainError("ValidateURL", domain.ErrSSRFBlocked,
			fmt.Sprintf("scheme %q not allowed, only http/https", u.Scheme))
	}

	host := u.Hostname()
	if host == "" {
		return domain.NewDomainError("ValidateURL", domain.ErrSSRFBlocked, "empty hostname")
	}
	if ip := net.ParseIP(host); ip != nil && IsPrivateIP(ip) {
		return domain.NewDomainError("ValidateURL", domain.ErrSSRFBlocked,
			fmt.Sprintf("IP %s is private/reserved", ip))
	}
	return nil
}

// SafeDialer returns a dialer that refuses to connect to blocked addresses.
// The check runs on the resolved address about to be dialed, so a hostname
// that re-resolves to a private IP between validation and connect is caught.
func SafeDialer(timeout time.Duration) *net.Dialer {
	return &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return domain.NewDomainError("SafeDialer", domain.ErrSSRFBlocked, err.Error())
			}
			ip := net.ParseIP(host)
			if ip == nil || IsPrivateIP(ip) {
				return domain.NewDomainError("SafeDialer", domain.ErrSSRFBlocked,
					fmt.Sprintf("address %s is private/reserved", host))
			}
			return nil
		},
	}
}

// NewSSRFSafeTransport returns a clone of the default transport that dials
// through SafeDialer.
func NewSSRFSafeTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = SafeDialer(10 * time.Second).DialContext
	t.Proxy = nil
	t.TLSHandshakeTimeout = 10 * time.Second
	return t
}
