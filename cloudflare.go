// ABOUTME: Zone backed by the Cloudflare DNS API.
// ABOUTME: Replaces records in place with UpdateDNSRecord, resolving zone IDs on first use.

package dyndns

import (
	"context"
	"fmt"
	"strings"
	"sync"

	cfapi "github.com/cloudflare/cloudflare-go"
	"github.com/coredns/coredns/plugin"
)

// cloudflareHandle identifies a Cloudflare DNS record.
type cloudflareHandle struct {
	ID     string
	ZoneID string
}

// CloudflareZone implements Zone on top of one or more Cloudflare zones.
type CloudflareZone struct {
	api   *cfapi.API
	zones []string // FQDNs

	mu  sync.Mutex
	ids map[string]string // zone FQDN -> Cloudflare zone ID
}

// NewCloudflareZone creates a Zone for the given zone names using an API
// token. No API call is made until the first lookup.
func NewCloudflareZone(token string, zones []string, opts ...cfapi.Option) (*CloudflareZone, error) {
	api, err := cfapi.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating cloudflare api client: %w", err)
	}
	return &CloudflareZone{api: api, zones: zones, ids: make(map[string]string)}, nil
}

// zoneID returns the Cloudflare ID of the longest configured zone containing name.
func (z *CloudflareZone) zoneID(name string) (string, error) {
	zone := plugin.Zones(z.zones).Matches(name)
	if zone == "" {
		return "", fmt.Errorf("%s does not belong to any configured zone", name)
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if id, ok := z.ids[zone]; ok {
		return id, nil
	}
	id, err := z.api.ZoneIDByName(strings.TrimSuffix(zone, "."))
	if err != nil {
		return "", fmt.Errorf("resolving zone id of %s: %w", zone, err)
	}
	z.ids[zone] = id
	return id, nil
}

// Lookup implements Zone. Only the first matching record is returned.
func (z *CloudflareZone) Lookup(ctx context.Context, name, qtype string) (Existing, error) {
	zid, err := z.zoneID(name)
	if err != nil {
		return Existing{}, err
	}

	records, _, err := z.api.ListDNSRecords(ctx, cfapi.ZoneIdentifier(zid), cfapi.ListDNSRecordsParams{
		Type: qtype,
		Name: strings.TrimSuffix(name, "."),
	})
	if err != nil {
		return Existing{}, fmt.Errorf("listing %s records of %s: %w", qtype, name, err)
	}
	if len(records) == 0 {
		return Existing{}, fmt.Errorf("%s %s: %w", name, qtype, ErrRecordNotFound)
	}
	return Existing{
		Value:  records[0].Content,
		Handle: cloudflareHandle{ID: records[0].ID, ZoneID: zid},
	}, nil
}

// Apply implements Zone. Cloudflare updates the record in place, which
// replaces the old value with the new one in a single API operation.
func (z *CloudflareZone) Apply(ctx context.Context, cs ChangeSet) error {
	h, ok := cs.Delete.(cloudflareHandle)
	if !ok {
		return fmt.Errorf("cloudflare zone: unexpected record handle %T", cs.Delete)
	}

	_, err := z.api.UpdateDNSRecord(ctx, cfapi.ZoneIdentifier(h.ZoneID), cfapi.UpdateDNSRecordParams{
		ID:      h.ID,
		Type:    cs.Add.Type,
		Name:    strings.TrimSuffix(cs.Add.Name, "."),
		Content: cs.Add.Value,
		TTL:     int(cs.Add.TTL),
	})
	if err != nil {
		return fmt.Errorf("updating %s record %s: %w", cs.Add.Type, h.ID, err)
	}
	return nil
}
