// Package dnscheck probes DNS resolution against a specific server.
package dnscheck

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const DefaultTimeout = 5 * time.Second

// Result of one resolution probe. Resolution failures are data, not errors.
type Result struct {
	Query           string
	Server          string
	Resolved        bool
	Addresses       []string
	MatchesExpected bool
	Error           string
}

// Lookup resolves an A record for query against the given server. When
// expected is non-empty, MatchesExpected reports whether it appears among
// the returned addresses.
func Lookup(ctx context.Context, query, server, expected string) Result {
	result := Result{Query: query, Server: server}

	if !strings.Contains(server, ":") {
		server = net.JoinHostPort(server, "53")
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(query), dns.TypeA)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: DefaultTimeout}
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		result.Error = "NXDOMAIN"
		return result
	default:
		result.Error = dns.RcodeToString[resp.Rcode]
		return result
	}

	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			result.Addresses = append(result.Addresses, a.A.String())
		}
	}
	if len(result.Addresses) == 0 {
		result.Error = "no answer"
		return result
	}
	sort.Strings(result.Addresses)

	result.Resolved = true
	result.MatchesExpected = expected == ""
	for _, addr := range result.Addresses {
		if addr == expected {
			result.MatchesExpected = true
		}
	}
	return result
}
