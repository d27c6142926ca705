// ABOUTME: Tests for CloudflareZone against a fake Cloudflare API served by httptest.
// ABOUTME: Covers lookup, not-found mapping, in-place replacement and API errors.

package dyndns

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	cfapi "github.com/cloudflare/cloudflare-go"
)

// fakeCloudflare serves the two DNS record endpoints CloudflareZone uses.
type fakeCloudflare struct {
	mu      sync.Mutex
	records []map[string]any
	patches []map[string]any
	denied  bool
}

func (f *fakeCloudflare) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if f.denied {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"code":10000,"message":"Authentication error"}],"messages":[],"result":null}`))
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/zones/zone123/dns_records":
		q := r.URL.Query()
		var result []map[string]any
		for _, rec := range f.records {
			if rec["type"] == q.Get("type") && rec["name"] == q.Get("name") {
				result = append(result, rec)
			}
		}
		if result == nil {
			result = []map[string]any{}
		}
		writeCloudflare(w, result, map[string]any{
			"page": 1, "per_page": 100, "count": len(result), "total_count": len(result), "total_pages": 1,
		})

	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/zones/zone123/dns_records/"):
		id := strings.TrimPrefix(r.URL.Path, "/zones/zone123/dns_records/")
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, rec := range f.records {
			if rec["id"] == id {
				rec["content"] = body["content"]
				rec["ttl"] = body["ttl"]
				f.patches = append(f.patches, body)
				writeCloudflare(w, rec, nil)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"errors":[{"code":81044,"message":"Record does not exist."}],"messages":[],"result":null}`))

	default:
		http.NotFound(w, r)
	}
}

func writeCloudflare(w http.ResponseWriter, result any, info map[string]any) {
	resp := map[string]any{"success": true, "errors": []any{}, "messages": []any{}, "result": result}
	if info != nil {
		resp["result_info"] = info
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestCloudflareZone(t *testing.T, fake *fakeCloudflare) *CloudflareZone {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	z, err := NewCloudflareZone("test-token", []string{"example.org."}, cfapi.BaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewCloudflareZone() error: %v", err)
	}
	z.ids["example.org."] = "zone123"
	return z
}

func TestCloudflareZone_Lookup(t *testing.T) {
	t.Parallel()
	fake := &fakeCloudflare{records: []map[string]any{
		{"id": "rec1", "type": "A", "name": "home.example.org", "content": "192.0.2.1", "ttl": 60},
		{"id": "rec2", "type": "A", "name": "home.example.org", "content": "192.0.2.2", "ttl": 60},
	}}
	z := newTestCloudflareZone(t, fake)

	ex, err := z.Lookup(context.Background(), "home.example.org.", "A")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if ex.Value != "192.0.2.1" {
		t.Errorf("Value = %q, want the first record", ex.Value)
	}
	if h, ok := ex.Handle.(cloudflareHandle); !ok || h.ID != "rec1" || h.ZoneID != "zone123" {
		t.Errorf("Handle = %#v, want rec1 in zone123", ex.Handle)
	}

	_, err = z.Lookup(context.Background(), "home.example.org.", "AAAA")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Lookup(AAAA) error = %v, want ErrRecordNotFound", err)
	}
}

func TestCloudflareZone_Lookup_OutsideZones(t *testing.T) {
	t.Parallel()
	z := newTestCloudflareZone(t, &fakeCloudflare{})

	_, err := z.Lookup(context.Background(), "home.example.com.", "A")
	if err == nil || errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("Lookup() error = %v, want a zone error", err)
	}
}

func TestCloudflareZone_Lookup_APIError(t *testing.T) {
	t.Parallel()
	z := newTestCloudflareZone(t, &fakeCloudflare{denied: true})

	_, err := z.Lookup(context.Background(), "home.example.org.", "A")
	if err == nil || errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("Lookup() error = %v, want an API error distinct from not found", err)
	}
}

func TestCloudflareZone_Apply(t *testing.T) {
	t.Parallel()
	fake := &fakeCloudflare{records: []map[string]any{
		{"id": "rec1", "type": "AAAA", "name": "home.example.org", "content": "2001:db8::1", "ttl": 3600},
	}}
	z := newTestCloudflareZone(t, fake)
	ctx := context.Background()

	ex, err := z.Lookup(ctx, "home.example.org.", "AAAA")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	add := Record{Name: "home.example.org.", Type: "AAAA", TTL: UpdateTTL, Value: "2001:db8::2"}
	if err := z.Apply(ctx, ChangeSet{Delete: ex.Handle, Add: add}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.patches) != 1 {
		t.Fatalf("got %d PATCH requests, want 1", len(fake.patches))
	}
	p := fake.patches[0]
	if p["content"] != "2001:db8::2" || p["name"] != "home.example.org" || p["ttl"] != float64(UpdateTTL) {
		t.Errorf("PATCH body = %v", p)
	}
}

func TestCloudflareZone_Apply_MissingRecord(t *testing.T) {
	t.Parallel()
	z := newTestCloudflareZone(t, &fakeCloudflare{})

	err := z.Apply(context.Background(), ChangeSet{
		Delete: cloudflareHandle{ID: "gone", ZoneID: "zone123"},
		Add:    Record{Name: "home.example.org.", Type: "A", TTL: UpdateTTL, Value: "192.0.2.2"},
	})
	if err == nil {
		t.Fatal("Apply() expected error for a missing record")
	}
}

func TestCloudflareZone_WithReconciler(t *testing.T) {
	t.Parallel()
	fake := &fakeCloudflare{records: []map[string]any{
		{"id": "rec1", "type": "A", "name": "home.example.org", "content": "1.1.1.1", "ttl": 60},
	}}
	z := newTestCloudflareZone(t, fake)

	out := NewReconciler(z).Reconcile(context.Background(), "home.example.org", ParseReported("2.2.2.2"))
	if out.Status != StatusApplied {
		t.Fatalf("Status = %v, want %v (err: %v)", out.Status, StatusApplied, out.Err)
	}

	out = NewReconciler(z).Reconcile(context.Background(), "home.example.org", ParseReported("2.2.2.2"))
	if out.Status != StatusNoChange {
		t.Fatalf("second Status = %v, want %v", out.Status, StatusNoChange)
	}
}
