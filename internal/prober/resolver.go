package prober

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// resolvePTR asks the given DNS server for the reverse name of addr. The
// server may omit its port; 53 is assumed.
func resolvePTR(ctx context.Context, server, addr string) (string, error) {
	rev, err := dns.ReverseAddr(addr)
	if err != nil {
		return "", fmt.Errorf("reverse address %s: %w", addr, err)
	}

	m := new(dns.Msg)
	m.SetQuestion(rev, dns.TypePTR)

	c := new(dns.Client)
	in, _, err := c.ExchangeContext(ctx, m, withDNSPort(server))
	if err != nil {
		return "", fmt.Errorf("ptr lookup %s: %w", addr, err)
	}

	for _, ans := range in.Answer {
		if ptr, ok := ans.(*dns.PTR); ok {
			name := strings.TrimSuffix(strings.TrimSpace(ptr.Ptr), ".")
			if name != "" {
				return name, nil
			}
		}
	}
	return "", fmt.Errorf("no ptr record for %s", addr)
}

func withDNSPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, "53")
}
