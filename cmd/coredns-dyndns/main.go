// ABOUTME: CoreDNS server binary with the dyndns plugin compiled in.
// ABOUTME: Registers the directive ahead of "file" and hands over to coremain.

package main

import (
	"github.com/coredns/coredns/core/dnsserver"
	"github.com/coredns/coredns/coremain"

	_ "github.com/coredns/coredns/plugin/errors"
	_ "github.com/coredns/coredns/plugin/health"
	_ "github.com/coredns/coredns/plugin/log"
	_ "github.com/coredns/coredns/plugin/metrics"
	_ "github.com/coredns/coredns/plugin/ready"

	_ "github.com/mauromedda/coredns-dyndns"
)

func init() {
	dnsserver.Directives = insertBefore(dnsserver.Directives, "file", "dyndns")
}

// insertBefore places name ahead of anchor, or appends it when anchor is missing.
func insertBefore(directives []string, anchor, name string) []string {
	out := make([]string, 0, len(directives)+1)
	inserted := false
	for _, d := range directives {
		if d == anchor && !inserted {
			out = append(out, name)
			inserted = true
		}
		out = append(out, d)
	}
	if !inserted {
		out = append(out, name)
	}
	return out
}

func main() {
	coremain.Run()
}
