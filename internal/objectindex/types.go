// Package objectindex implements the object index and read/write pipeline
// (spec component C4): it maps object ids to (name, owner, size, global
// checksum, ordered chunk-id list, access stats, tier) and orchestrates the
// chunk store to turn that mapping into whole-object reads and writes.
package objectindex

import (
	"time"

	"vaultfs/internal/store"
	"vaultfs/internal/vaultid"
)

// Tier is an advisory access-recency classification. It never moves bytes;
// it only annotates an object record.
type Tier int

const (
	TierHot Tier = iota
	TierWarm
	TierCold
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "HOT"
	case TierWarm:
		return "WARM"
	case TierCold:
		return "COLD"
	default:
		return "UNKNOWN"
	}
}

// Record is an object (file) record.
type Record struct {
	ID      vaultid.ObjectID
	Name    string
	Owner   string
	Size    uint64
	Checksum store.Checksum

	// ChunkIDs is the ordered list of chunks whose concatenation
	// reconstitutes the object's plaintext.
	ChunkIDs []store.ChunkID

	CreatedAt  time.Time
	ModifiedAt time.Time

	AccessCount int64
	LastAccess  time.Time

	Tier Tier

	// CompressionRatio is stored_bytes/plaintext_bytes across this
	// object's chunks, 1.0 when no chunk compressed. Also 1.0 for an
	// object with zero chunks.
	CompressionRatio float64
}

// clone returns a deep copy, safe to hand to callers outside the index's
// lock.
func (r Record) clone() Record {
	out := r
	out.ChunkIDs = append([]store.ChunkID(nil), r.ChunkIDs...)
	return out
}
