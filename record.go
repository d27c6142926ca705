// ABOUTME: Record data model with per-type validation and dns.RR conversion.
// ABOUTME: Supports the A, AAAA, CNAME and TXT records a dynamic zone needs.

package dyndns

import (
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

const (
	DefaultTTL = 3600
	MinTTL     = 60
	MaxTTL     = 86400

	// UpdateTTL is the TTL of every record written by the Reconciler.
	UpdateTTL = 60

	txtChunk = 255
)

var supportedTypes = map[string]bool{
	"A": true, "AAAA": true, "CNAME": true, "TXT": true,
}

// Record is a single DNS record held by a Zone.
type Record struct {
	Name  string `json:"name" yaml:"name" toml:"name"`
	Type  string `json:"type" yaml:"type" toml:"type"`
	TTL   uint32 `json:"ttl" yaml:"ttl" toml:"ttl"`
	Value string `json:"value" yaml:"value" toml:"value"`
}

// Validate checks the record fields for correctness.
// It normalises Type to uppercase and sets a default TTL when zero.
func (r *Record) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if !dns.IsFqdn(r.Name) {
		return fmt.Errorf("name %q must end with a trailing dot", r.Name)
	}

	r.Type = strings.ToUpper(r.Type)
	if !supportedTypes[r.Type] {
		return fmt.Errorf("unsupported record type %q", r.Type)
	}

	if r.TTL == 0 {
		r.TTL = DefaultTTL
	}
	if r.TTL < MinTTL || r.TTL > MaxTTL {
		return fmt.Errorf("TTL %d out of range [%d, %d]", r.TTL, MinTTL, MaxTTL)
	}

	switch r.Type {
	case "A":
		if ip := net.ParseIP(r.Value); ip == nil || ip.To4() == nil {
			return fmt.Errorf("value %q is not a valid IPv4 address", r.Value)
		}
	case "AAAA":
		if ip := net.ParseIP(r.Value); ip == nil || ip.To4() != nil {
			return fmt.Errorf("value %q is not a valid IPv6 address", r.Value)
		}
	case "CNAME":
		if !dns.IsFqdn(r.Value) {
			return fmt.Errorf("value %q must be a FQDN with trailing dot", r.Value)
		}
	case "TXT":
		if r.Value == "" {
			return fmt.Errorf("TXT value must not be empty")
		}
	}
	return nil
}

// ToRR converts a Record into a miekg/dns RR. Address records whose value
// does not parse are rejected here rather than producing an unpackable RR.
func (r Record) ToRR() (dns.RR, error) {
	hdr := dns.RR_Header{
		Name:   r.Name,
		Rrtype: dns.StringToType[strings.ToUpper(r.Type)],
		Class:  dns.ClassINET,
		Ttl:    r.TTL,
	}

	switch hdr.Rrtype {
	case dns.TypeA:
		ip := net.ParseIP(r.Value).To4()
		if ip == nil {
			return nil, fmt.Errorf("A record %s has invalid value %q", r.Name, r.Value)
		}
		return &dns.A{Hdr: hdr, A: ip}, nil
	case dns.TypeAAAA:
		ip := net.ParseIP(r.Value)
		if ip == nil || ip.To4() != nil {
			return nil, fmt.Errorf("AAAA record %s has invalid value %q", r.Name, r.Value)
		}
		return &dns.AAAA{Hdr: hdr, AAAA: ip}, nil
	case dns.TypeCNAME:
		return &dns.CNAME{Hdr: hdr, Target: r.Value}, nil
	case dns.TypeTXT:
		return &dns.TXT{Hdr: hdr, Txt: splitTXT(r.Value)}, nil
	default:
		return nil, fmt.Errorf("unsupported record type %q", r.Type)
	}
}

// splitTXT breaks a TXT value into 255-byte character-strings.
func splitTXT(s string) []string {
	if len(s) <= txtChunk {
		return []string{s}
	}
	var chunks []string
	for len(s) > txtChunk {
		chunks = append(chunks, s[:txtChunk])
		s = s[txtChunk:]
	}
	return append(chunks, s)
}
