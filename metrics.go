// ABOUTME: Prometheus metrics following the CoreDNS plugin convention.
// ABOUTME: Tracks DNS queries, response rcodes, update results and store record counts.

package dyndns

import (
	"github.com/coredns/coredns/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: plugin.Namespace,
	Subsystem: pluginName,
	Name:      "request_count_total",
	Help:      "Counter of DNS requests handled.",
}, []string{"server"})

var responseCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: plugin.Namespace,
	Subsystem: pluginName,
	Name:      "response_rcode_count_total",
	Help:      "Counter of DNS responses by rcode.",
}, []string{"server", "rcode"})

// updateCount is labelled with the dyndns2 return code sent to the client.
var updateCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: plugin.Namespace,
	Subsystem: pluginName,
	Name:      "update_count_total",
	Help:      "Counter of dyndns2 update requests by return code.",
}, []string{"result"})

var storeRecordGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: plugin.Namespace,
	Subsystem: pluginName,
	Name:      "store_records",
	Help:      "Current number of records in the store.",
}, []string{"type"})
