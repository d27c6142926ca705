// ABOUTME: Readiness reporting for the dyndns plugin.
// ABOUTME: Satisfies the ready.Readiness interface once the record store is loaded.

package dyndns

// Ready reports whether the plugin is ready to serve DNS queries. Without a
// local store (Cloudflare backend) there is nothing to load.
func (d *DynDNS) Ready() bool {
	return d.Store == nil || d.Store.Ready()
}
