// Package netguard keeps module downloads away from private and reserved
// networks.
package netguard

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"muehle-agent/internal/domain"
)

var blockedRanges = mustParse(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParse(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// IsPrivateIP reports whether ip falls in a private or reserved range.
func IsPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, n := range blockedRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func blocked(detail string) error {
	return domain.NewSubSystemError("host", "netguard", domain.ErrURLBlocked, detail)
}

// CheckURL rejects anything but http(s) URLs whose host is a public literal
// IP or a name. Names are resolved by the Transport at dial time.
func CheckURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return blocked(fmt.Sprintf("invalid url: %v", err))
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return blocked(fmt.Sprintf("scheme %q not allowed", u.Scheme))
	}
	host := u.Hostname()
	if host == "" {
		return blocked("empty hostname")
	}
	if ip := net.ParseIP(host); ip != nil && IsPrivateIP(ip) {
		return blocked(fmt.Sprintf("%s is private or reserved", ip))
	}
	return nil
}

// Transport resolves each host once, refuses private addresses, and dials
// the checked IP directly so a second lookup cannot rebind it.
func Transport() *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("invalid address: %w", err)
			}
			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", host, err)
			}
			if len(ips) == 0 {
				return nil, fmt.Errorf("resolve %s: no addresses", host)
			}
			for _, ip := range ips {
				if IsPrivateIP(ip.IP) {
					return nil, blocked(fmt.Sprintf("%s resolves to %s", host, ip.IP))
				}
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
		},
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
}

// Client is an http.Client that refuses redirects to blocked URLs.
func Client() *http.Client {
	return &http.Client{
		Transport: Transport(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			return CheckURL(req.URL.String())
		},
	}
}
