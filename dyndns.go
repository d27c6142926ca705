// ABOUTME: DNS handler implementing plugin.Handler for the dyndns plugin.
// ABOUTME: Answers from the local record store with CNAME chasing and zone-aware fallthrough.

package dyndns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coredns/coredns/plugin"
	"github.com/coredns/coredns/plugin/pkg/fall"
	clog "github.com/coredns/coredns/plugin/pkg/log"
	"github.com/coredns/coredns/request"
	"github.com/miekg/dns"
)

const (
	pluginName   = "dyndns"
	maxCNAMEHops = 10
)

var log = clog.NewWithPlugin(pluginName)

// DynDNS implements plugin.Handler. Store is nil when updates go to a
// remote provider; queries are then passed down the chain.
type DynDNS struct {
	Next  plugin.Handler
	Zones []string
	Store *Store
	Fall  fall.F
}

// Name returns the plugin name.
func (d *DynDNS) Name() string { return pluginName }

// ServeDNS answers queries for the managed zones from the store.
func (d *DynDNS) ServeDNS(ctx context.Context, w dns.ResponseWriter, r *dns.Msg) (int, error) {
	state := request.Request{W: w, Req: r}
	qname := state.Name()

	zone := plugin.Zones(d.Zones).Matches(qname)
	if zone == "" || d.Store == nil {
		return plugin.NextOrFailure(d.Name(), d.Next, ctx, w, r)
	}

	requestCount.WithLabelValues(zone).Inc()

	var rcode int
	defer func() {
		responseCount.WithLabelValues(zone, dns.RcodeToString[rcode]).Inc()
	}()

	var err error
	rcode, err = d.answer(ctx, w, r, state, zone)
	return rcode, err
}

func (d *DynDNS) answer(ctx context.Context, w dns.ResponseWriter, r *dns.Msg, state request.Request, zone string) (int, error) {
	qname, qtype := state.Name(), state.QType()

	all := d.Store.GetAll(qname)
	if len(all) == 0 {
		if d.Fall.Through(qname) {
			return plugin.NextOrFailure(d.Name(), d.Next, ctx, w, r)
		}
		return d.writeNegative(w, r, zone, dns.RcodeNameError)
	}

	if answers := toRRs(filterByType(all, qtype)); len(answers) > 0 {
		return d.writeAnswer(w, r, answers)
	}

	if qtype == dns.TypeA || qtype == dns.TypeAAAA {
		if cnames := toRRs(filterByType(all, dns.TypeCNAME)); len(cnames) > 0 {
			target := cnames[0].(*dns.CNAME).Target
			answers := append(cnames[:1], d.chaseCNAME(target, qtype, 1)...)
			return d.writeAnswer(w, r, answers)
		}
	}

	return d.writeNegative(w, r, zone, dns.RcodeSuccess)
}

// chaseCNAME follows CNAME chains within the store, up to maxCNAMEHops depth.
func (d *DynDNS) chaseCNAME(target string, qtype uint16, depth int) []dns.RR {
	if depth > maxCNAMEHops {
		return nil
	}

	all := d.Store.GetAll(target)
	if answers := toRRs(filterByType(all, qtype)); len(answers) > 0 {
		return answers
	}

	cnames := toRRs(filterByType(all, dns.TypeCNAME))
	if len(cnames) == 0 {
		return nil
	}
	next := cnames[0].(*dns.CNAME).Target
	return append(cnames[:1], d.chaseCNAME(next, qtype, depth+1)...)
}

func filterByType(records []Record, qtype uint16) []Record {
	typeName := dns.TypeToString[qtype]
	var result []Record
	for _, r := range records {
		if strings.EqualFold(r.Type, typeName) {
			result = append(result, r)
		}
	}
	return result
}

// toRRs converts records, skipping those that do not form a valid RR
// (for example an address stored verbatim from a malformed update).
func toRRs(records []Record) []dns.RR {
	var rrs []dns.RR
	for _, rec := range records {
		rr, err := rec.ToRR()
		if err != nil {
			log.Errorf("converting record to RR: %v", err)
			continue
		}
		rrs = append(rrs, rr)
	}
	return rrs
}

func (d *DynDNS) writeAnswer(w dns.ResponseWriter, r *dns.Msg, answers []dns.RR) (int, error) {
	msg := new(dns.Msg)
	msg.SetReply(r)
	msg.Authoritative = true
	msg.Answer = answers

	if err := w.WriteMsg(msg); err != nil {
		return dns.RcodeServerFailure, fmt.Errorf("writing response: %w", err)
	}
	return dns.RcodeSuccess, nil
}

// writeNegative writes NXDOMAIN (rcode RcodeNameError) or NODATA (RcodeSuccess)
// with the zone SOA in the authority section.
func (d *DynDNS) writeNegative(w dns.ResponseWriter, r *dns.Msg, zone string, rcode int) (int, error) {
	msg := new(dns.Msg)
	msg.SetRcode(r, rcode)
	msg.Authoritative = true
	msg.Ns = []dns.RR{soa(zone)}

	if err := w.WriteMsg(msg); err != nil {
		return dns.RcodeServerFailure, fmt.Errorf("writing %s: %w", dns.RcodeToString[rcode], err)
	}
	return rcode, nil
}

// soa synthesises the zone SOA. The minimum TTL matches UpdateTTL so
// resolvers do not cache a negative answer longer than an address.
func soa(zone string) dns.RR {
	return &dns.SOA{
		Hdr: dns.RR_Header{
			Name:   zone,
			Rrtype: dns.TypeSOA,
			Class:  dns.ClassINET,
			Ttl:    UpdateTTL,
		},
		Ns:      "ns1." + zone,
		Mbox:    "hostmaster." + zone,
		Serial:  uint32(time.Now().Unix()),
		Refresh: 7200,
		Retry:   1800,
		Expire:  86400,
		Minttl:  UpdateTTL,
	}
}
