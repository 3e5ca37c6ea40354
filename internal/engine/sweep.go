package engine

import (
	"context"
	"fmt"

	"vaultfs/internal/store"
	"vaultfs/internal/vaulterrors"
)

// SweepReport summarizes an orphan-chunk sweep.
type SweepReport struct {
	ChunksSwept   int
	BytesReclaimed uint64
}

// SweepOrphans reclaims chunks left behind by a write whose caller
// cancelled after some chunks were already inserted but before the object
// record was written (spec §9's noted orphan tolerance: "an administrative
// sweep can reclaim (future work)"). It walks every chunk in the store,
// and for any chunk no live object references, releases it down to a
// refcount of zero, freeing its replica extents.
func (e *Engine) SweepOrphans(ctx context.Context) (SweepReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireReadyLocked(); err != nil {
		return SweepReport{}, err
	}

	referenced := make(map[store.ChunkID]bool)
	for _, rec := range e.index.All() {
		for _, cid := range rec.ChunkIDs {
			referenced[cid] = true
		}
	}

	var report SweepReport
	for _, id := range e.chunks.IDs() {
		if referenced[id] {
			continue
		}
		rec, ok := e.chunks.Record(id)
		if !ok {
			continue
		}
		for i := int64(0); i < rec.RefCount; i++ {
			if err := e.chunks.Release(ctx, id); err != nil {
				return report, err
			}
		}
		report.ChunksSwept++
		report.BytesReclaimed += rec.StoredLen * uint64(len(rec.Replicas))
	}

	if report.ChunksSwept > 0 {
		if err := e.saveLocked(); err != nil {
			return report, fmt.Errorf("%w: save after orphan sweep: %v", vaulterrors.ErrDeviceError, err)
		}
	}
	return report, nil
}
