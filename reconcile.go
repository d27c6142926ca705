// ABOUTME: Reconciler deciding which A/AAAA records to rewrite for a dyndns2 update.
// ABOUTME: Maps every request to one Outcome: nohost, nochg, good or dnserr.

package dyndns

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/miekg/dns"
)

// Family is an address family with its own record type.
type Family uint8

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

var families = [...]Family{FamilyIPv4, FamilyIPv6}

func (f Family) String() string {
	if f == FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// RecordType returns "A" or "AAAA".
func (f Family) RecordType() string {
	if f == FamilyIPv6 {
		return "AAAA"
	}
	return "A"
}

// Reported holds the addresses a client reported, one per family. An empty
// string means the family was not reported.
type Reported struct {
	IPv4 string
	IPv6 string
}

// ParseReported classifies the comma-separated myip list. The first token
// containing "." is the IPv4 address and the first token containing ":" is
// the IPv6 address; later tokens and tokens with neither are ignored.
// Surrounding whitespace is trimmed from each token, so "a.b.c.d, ::1"
// as sent by some router firmware classifies the same as "a.b.c.d,::1";
// tokens are not otherwise validated or normalised.
func ParseReported(myip string) Reported {
	var rep Reported
	for _, tok := range strings.Split(myip, ",") {
		tok = strings.TrimSpace(tok)
		if rep.IPv4 == "" && strings.Contains(tok, ".") {
			rep.IPv4 = tok
		}
		if rep.IPv6 == "" && strings.Contains(tok, ":") {
			rep.IPv6 = tok
		}
	}
	return rep
}

func (r Reported) get(f Family) string {
	if f == FamilyIPv6 {
		return r.IPv6
	}
	return r.IPv4
}

// Status is the terminal result of a reconciliation.
type Status uint8

const (
	StatusHostUnknown Status = iota + 1
	StatusNoChange
	StatusApplied
	StatusUpstreamError
)

// String returns the dyndns2 return code of the status.
func (s Status) String() string {
	switch s {
	case StatusHostUnknown:
		return "nohost"
	case StatusNoChange:
		return "nochg"
	case StatusApplied:
		return "good"
	case StatusUpstreamError:
		return "dnserr"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// Change is one record replacement that was applied.
type Change struct {
	Family Family
	Old    string
	New    string
}

// Outcome is the result of Reconcile. Changes lists the replacements that
// were applied, including those applied before another family failed.
type Outcome struct {
	Status   Status
	Reported Reported
	Changes  []Change
	Failed   []Family
	Err      error
}

// Response returns the HTTP status code and dyndns2 body for the outcome.
func (o Outcome) Response() (int, string) {
	switch o.Status {
	case StatusHostUnknown:
		return http.StatusNotFound, "nohost"
	case StatusNoChange:
		return http.StatusOK, "nochg"
	case StatusApplied:
		var ips []string
		for _, f := range families {
			if v := o.Reported.get(f); v != "" {
				ips = append(ips, v)
			}
		}
		return http.StatusOK, "good " + strings.Join(ips, ", ")
	default:
		return http.StatusBadGateway, "dnserr"
	}
}

// ReadErrorPolicy decides how a failed zone read is treated.
type ReadErrorPolicy uint8

const (
	// ReadErrorAsAbsent treats a family whose lookup failed as having no
	// record (zero value).
	ReadErrorAsAbsent ReadErrorPolicy = iota
	// ReadErrorFail ends the request with dnserr before any write.
	ReadErrorFail
)

// ParseReadErrorPolicy parses "absent" or "fail".
func ParseReadErrorPolicy(s string) (ReadErrorPolicy, error) {
	switch strings.ToLower(s) {
	case "absent":
		return ReadErrorAsAbsent, nil
	case "fail":
		return ReadErrorFail, nil
	default:
		return 0, fmt.Errorf("unknown read error policy %q: valid values are absent, fail", s)
	}
}

func (p ReadErrorPolicy) String() string {
	if p == ReadErrorFail {
		return "fail"
	}
	return "absent"
}

// Reconciler rewrites the A and AAAA records of existing hostnames to the
// addresses reported by clients. It holds no per-request state and is safe
// for concurrent use; concurrent updates of the same hostname are not
// serialised.
type Reconciler struct {
	zone       Zone
	readErrors ReadErrorPolicy
}

// ReconcilerOption configures optional Reconciler behaviour.
type ReconcilerOption func(*Reconciler)

// WithReadErrorPolicy sets how failed lookups are treated.
func WithReadErrorPolicy(p ReadErrorPolicy) ReconcilerOption {
	return func(r *Reconciler) {
		r.readErrors = p
	}
}

// NewReconciler creates a Reconciler working on zone.
func NewReconciler(zone Zone, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{zone: zone}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type snapshot struct {
	present bool
	Existing
}

// Reconcile compares the reported addresses of hostname (no trailing dot,
// any case) with its existing records and replaces the ones that differ. It never
// creates a record for a family that has none. Families are written
// independently: a failed write does not undo or prevent the other family's
// write, but the whole request reports dnserr.
func (r *Reconciler) Reconcile(ctx context.Context, hostname string, reported Reported) Outcome {
	name := strings.ToLower(dns.Fqdn(hostname))
	out := Outcome{Reported: reported}

	var snaps [len(families)]snapshot
	var readErrs []error
	for _, f := range families {
		ex, err := r.zone.Lookup(ctx, name, f.RecordType())
		switch {
		case err == nil:
			snaps[f] = snapshot{present: true, Existing: ex}
		case errors.Is(err, ErrRecordNotFound):
		default:
			log.Warningf("%s: reading %s record: %v", hostname, f.RecordType(), err)
			out.Failed = append(out.Failed, f)
			readErrs = append(readErrs, err)
		}
	}

	if len(readErrs) > 0 && r.readErrors == ReadErrorFail {
		out.Status = StatusUpstreamError
		out.Err = errors.Join(readErrs...)
		return out
	}
	out.Failed = nil

	if !snaps[FamilyIPv4].present && !snaps[FamilyIPv6].present {
		log.Infof("%s: The hostname does not exist", hostname)
		out.Status = StatusHostUnknown
		return out
	}

	if reported.IPv4 == snaps[FamilyIPv4].Value && reported.IPv6 == snaps[FamilyIPv6].Value {
		log.Infof("%s: No change", hostname)
		out.Status = StatusNoChange
		return out
	}

	var writeErrs []error
	for _, f := range families {
		want, cur := reported.get(f), snaps[f]
		if want == "" || !cur.present || want == cur.Value {
			continue
		}

		log.Infof("%s: Changing %s record from %s to %s", hostname, f.RecordType(), cur.Value, want)
		cs := ChangeSet{
			Delete: cur.Handle,
			Add:    Record{Name: name, Type: f.RecordType(), TTL: UpdateTTL, Value: want},
		}
		if err := r.zone.Apply(ctx, cs); err != nil {
			log.Errorf("%s: changing %s record: %v", hostname, f.RecordType(), err)
			out.Failed = append(out.Failed, f)
			writeErrs = append(writeErrs, err)
			continue
		}
		out.Changes = append(out.Changes, Change{Family: f, Old: cur.Value, New: want})
	}

	switch {
	case len(writeErrs) > 0:
		out.Status = StatusUpstreamError
		out.Err = errors.Join(writeErrs...)
	case len(out.Changes) == 0:
		log.Infof("%s: No change", hostname)
		out.Status = StatusNoChange
	default:
		out.Status = StatusApplied
	}
	return out
}
