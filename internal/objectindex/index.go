package objectindex

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"vaultfs/internal/vaultid"
)

// Index is the in-memory object table. It holds no device state and does
// no I/O; persistence is the metadata region's job (spec component C5). A
// name+owner pair is kept unique by a secondary lookup map maintained
// alongside the primary table.
type Index struct {
	mu sync.RWMutex

	byID        map[vaultid.ObjectID]*Record
	byNameOwner map[nameOwnerKey]vaultid.ObjectID
}

type nameOwnerKey struct {
	name  string
	owner string
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		byID:        make(map[vaultid.ObjectID]*Record),
		byNameOwner: make(map[nameOwnerKey]vaultid.ObjectID),
	}
}

// Restore installs a previously-persisted object table, e.g. after
// metadata load.
func (ix *Index) Restore(records map[vaultid.ObjectID]*Record) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byID = records
	if ix.byID == nil {
		ix.byID = make(map[vaultid.ObjectID]*Record)
	}
	ix.byNameOwner = make(map[nameOwnerKey]vaultid.ObjectID, len(ix.byID))
	for id, rec := range ix.byID {
		ix.byNameOwner[nameOwnerKey{rec.Name, rec.Owner}] = id
	}
}

// Snapshot returns a deep copy of every object record, for metadata
// persistence.
func (ix *Index) Snapshot() map[vaultid.ObjectID]Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[vaultid.ObjectID]Record, len(ix.byID))
	for id, rec := range ix.byID {
		out[id] = rec.clone()
	}
	return out
}

// Lookup finds the existing object, if any, with the given (name, owner).
func (ix *Index) Lookup(name, owner string) (Record, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	id, ok := ix.byNameOwner[nameOwnerKey{name, owner}]
	if !ok {
		return Record{}, false
	}
	return ix.byID[id].clone(), true
}

// Get returns the object record for id.
func (ix *Index) Get(id vaultid.ObjectID) (Record, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rec, ok := ix.byID[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Insert adds or replaces rec in the table, keyed by its id, and maintains
// the name+owner secondary index.
func (ix *Index) Insert(rec Record) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	cp := rec.clone()
	ix.byID[rec.ID] = &cp
	ix.byNameOwner[nameOwnerKey{rec.Name, rec.Owner}] = rec.ID
}

// Delete removes id from the table.
func (ix *Index) Delete(id vaultid.ObjectID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	rec, ok := ix.byID[id]
	if !ok {
		return
	}
	delete(ix.byNameOwner, nameOwnerKey{rec.Name, rec.Owner})
	delete(ix.byID, id)
}

// Touch bumps the access counter and last-access timestamp for id,
// in-memory only; no metadata save is required (spec §4.4's strict read).
func (ix *Index) Touch(id vaultid.ObjectID, at time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	rec, ok := ix.byID[id]
	if !ok {
		return
	}
	rec.AccessCount++
	rec.LastAccess = at
}

// SetTier updates id's advisory tier tag.
func (ix *Index) SetTier(id vaultid.ObjectID, tier Tier) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if rec, ok := ix.byID[id]; ok {
		rec.Tier = tier
	}
}

// Len returns the number of objects currently indexed.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

// All returns every object record, ordered by id for deterministic
// iteration (spec §9: callers must not rely on map order).
func (ix *Index) All() []Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Record, 0, len(ix.byID))
	for _, rec := range ix.byID {
		out = append(out, rec.clone())
	}
	slices.SortFunc(out, func(a, b Record) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

// SearchFilter is a conjunctive set of criteria; zero-valued fields are
// ignored. A zero time.Time bound means unbounded.
type SearchFilter struct {
	NameSubstring string
	Owner         string
	SizeMin       uint64
	SizeMax       uint64 // 0 means unbounded
	Tier          *Tier
	CreatedAfter  time.Time
	CreatedBefore time.Time
	MinAccessCount int64
}

// Search applies filter over every object, returning matches in
// deterministic id order.
func (ix *Index) Search(filter SearchFilter) []Record {
	all := ix.All()
	out := all[:0:0]
	for _, rec := range all {
		if filter.NameSubstring != "" && !strings.Contains(rec.Name, filter.NameSubstring) {
			continue
		}
		if filter.Owner != "" && rec.Owner != filter.Owner {
			continue
		}
		if rec.Size < filter.SizeMin {
			continue
		}
		if filter.SizeMax != 0 && rec.Size > filter.SizeMax {
			continue
		}
		if filter.Tier != nil && rec.Tier != *filter.Tier {
			continue
		}
		if !filter.CreatedAfter.IsZero() && rec.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if !filter.CreatedBefore.IsZero() && rec.CreatedAt.After(filter.CreatedBefore) {
			continue
		}
		if rec.AccessCount < filter.MinAccessCount {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// classifyTier implements the spec's tiering thresholds as of "now".
func classifyTier(rec Record, now time.Time) Tier {
	sinceAccess := now.Sub(cmp.Or(rec.LastAccess, rec.CreatedAt))
	switch {
	case sinceAccess <= 7*24*time.Hour && rec.AccessCount > 10:
		return TierHot
	case sinceAccess <= 30*24*time.Hour || rec.AccessCount > 3:
		return TierWarm
	default:
		return TierCold
	}
}

// RebalanceTiers recomputes every object's tier tag relative to now.
func (ix *Index) RebalanceTiers(now time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, rec := range ix.byID {
		rec.Tier = classifyTier(*rec, now)
	}
}
