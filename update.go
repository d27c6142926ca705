// ABOUTME: HTTP server for the dyndns2 update protocol (/nic/update).
// ABOUTME: Validates query parameters, runs the Reconciler and writes the return code.

package dyndns

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coredns/coredns/plugin"
	"github.com/miekg/dns"
)

// UpdateServer serves dyndns2 update requests.
type UpdateServer struct {
	reconciler *Reconciler
	auth       *Auth
	zones      []string
	listen     string
	tls        *tlsConfig
	server     *http.Server
}

// NewUpdateServer creates an update server (not yet started). Only
// hostnames inside zones are accepted.
func NewUpdateServer(reconciler *Reconciler, auth *Auth, zones []string, listen string, tls *tlsConfig) *UpdateServer {
	return &UpdateServer{reconciler: reconciler, auth: auth, zones: zones, listen: listen, tls: tls}
}

// handler builds the http.Handler with routing and middleware.
func (u *UpdateServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /nic/update", u.handleUpdate)
	mux.HandleFunc("GET /update", u.handleUpdate)

	return u.auth.HTTPMiddleware(mux)
}

// Start begins serving in a background goroutine.
func (u *UpdateServer) Start() error {
	ln, err := net.Listen("tcp", u.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", u.listen, err)
	}

	if u.tls != nil {
		cfg, err := u.tls.build()
		if err != nil {
			ln.Close()
			return err
		}
		ln = tls.NewListener(ln, cfg)
	}

	u.server = &http.Server{
		Handler:           u.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := u.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("update server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (u *UpdateServer) Stop() {
	if u.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = u.server.Shutdown(ctx)
}

func (u *UpdateServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	hostname := strings.TrimSuffix(strings.TrimSpace(q.Get("hostname")), ".")
	if hostname == "" {
		log.Warningf("update without hostname from %s", r.RemoteAddr)
		u.reply(w, "notfqdn", http.StatusBadRequest, "notfqdn")
		return
	}

	myip := q["myip"]
	if len(myip) != 1 {
		log.Warningf("%s: expected exactly one myip parameter, got %d", hostname, len(myip))
		u.reply(w, "badagent", http.StatusBadRequest, "badagent")
		return
	}

	if plugin.Zones(u.zones).Matches(dns.Fqdn(hostname)) == "" {
		log.Warningf("%s: outside of the managed zones", hostname)
		u.reply(w, StatusHostUnknown.String(), http.StatusNotFound, "nohost")
		return
	}

	out := u.reconciler.Reconcile(r.Context(), hostname, ParseReported(myip[0]))
	code, body := out.Response()
	u.reply(w, out.Status.String(), code, body)
}

func (u *UpdateServer) reply(w http.ResponseWriter, result string, code int, body string) {
	updateCount.WithLabelValues(result).Inc()
	writeText(w, code, body)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
