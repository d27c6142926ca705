// ABOUTME: Package dyndns implements a CoreDNS plugin speaking the dyndns2 update protocol.
// ABOUTME: Reconciles client-reported addresses against existing A/AAAA records in a zone.

// Package dyndns implements a CoreDNS plugin that accepts dyndns2 style
// updates ("/nic/update?hostname=...&myip=...") over HTTP and rewrites the
// A and AAAA records of already provisioned hostnames to match the reported
// addresses. Records are kept in a local file-backed store, served through
// the CoreDNS plugin chain, or alternatively in a Cloudflare zone.
package dyndns
