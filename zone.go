// ABOUTME: Zone abstraction the Reconciler reads and mutates records through.
// ABOUTME: StoreZone adapts the local file-backed Store to it.

package dyndns

import (
	"context"
	"fmt"
)

// Existing is the current record of one name and type in a Zone. Handle is
// backend specific and identifies the record to delete in a ChangeSet.
type Existing struct {
	Value  string
	Handle any
}

// ChangeSet deletes the record identified by Delete and adds Add. A Zone
// applies it atomically.
type ChangeSet struct {
	Delete any
	Add    Record
}

// Zone is a mutable view of the authoritative records for a set of names.
//
// Lookup returns the first record of the given name and type, or an error
// wrapping ErrRecordNotFound when there is none. Any other error means the
// zone could not be read.
type Zone interface {
	Lookup(ctx context.Context, name, qtype string) (Existing, error)
	Apply(ctx context.Context, cs ChangeSet) error
}

// StoreZone serves a Zone from the local Store.
type StoreZone struct {
	store *Store
}

// NewStoreZone returns a Zone backed by store.
func NewStoreZone(store *Store) *StoreZone {
	return &StoreZone{store: store}
}

// Lookup implements Zone. The handle is the stored Record itself.
func (z *StoreZone) Lookup(_ context.Context, name, qtype string) (Existing, error) {
	recs := z.store.Get(name, qtype)
	if len(recs) == 0 {
		return Existing{}, fmt.Errorf("%s %s: %w", name, qtype, ErrRecordNotFound)
	}
	return Existing{Value: recs[0].Value, Handle: recs[0]}, nil
}

// Apply implements Zone using Store.Replace.
func (z *StoreZone) Apply(_ context.Context, cs ChangeSet) error {
	old, ok := cs.Delete.(Record)
	if !ok {
		return fmt.Errorf("store zone: unexpected record handle %T", cs.Delete)
	}
	return z.store.Replace(old, cs.Add)
}
