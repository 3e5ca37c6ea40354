// Package engine composes the space allocator, chunk store, object index,
// and metadata region into the top-level storage engine (spec §2's
// "compose bottom-up"). It owns the single-writer lock described in
// spec §5: one exclusive lock serializes every mutation of the object
// index, chunk table, and free list, while reads take a shared lock
// spanning chunk lookup and device reads.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vaultfs/internal/alloc"
	"vaultfs/internal/device"
	"vaultfs/internal/engineconfig"
	"vaultfs/internal/logging"
	"vaultfs/internal/metadata"
	"vaultfs/internal/objectindex"
	"vaultfs/internal/store"
	"vaultfs/internal/vaulterrors"
	"vaultfs/internal/vaultid"
)

// Engine is the top-level fault-tolerant block storage engine.
type Engine struct {
	mu sync.RWMutex

	dev    device.Device
	region *metadata.Region
	alloc  *alloc.Allocator
	chunks *store.Store
	index  *objectindex.Index
	pipe   *objectindex.Pipeline

	cfg engineconfig.Config
	log *slog.Logger
	now func() time.Time

	state State
}

// Open loads dev's metadata region and returns a ready (or
// MetadataCorrupted) Engine. It never returns a nil Engine on a
// MetadataCorrupted outcome: the caller can still inspect state and call
// Shutdown.
func Open(dev device.Device, cfg engineconfig.Config, logger *slog.Logger, now func() time.Time) (*Engine, error) {
	logger = logging.Default(logger)
	if now == nil {
		now = time.Now
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		dev:    dev,
		region: metadata.NewRegion(cfg.MetadataRegionSize, cfg.MetadataSections),
		log:    logger.With("component", "engine"),
		cfg:    cfg,
		now:    now,
		state:  Loading,
	}

	dataBase := cfg.MetadataRegionSize
	dataSize := dev.Size() - cfg.MetadataRegionSize
	e.alloc = alloc.New(dataBase, dataSize, cfg.BlockSize)
	e.chunks = store.New(dev, e.alloc, cfg.Replication, logger)
	e.index = objectindex.NewIndex()
	e.pipe = objectindex.New(e.index, e.chunks, logger, now)

	st, err := e.region.Load(dev, now)
	if err != nil {
		if errors.Is(err, vaulterrors.ErrMetadataCorrupted) {
			e.state = MetadataCorrupted
			e.log.Error("metadata region corrupted on open; engine entering terminal MetadataCorrupted state")
			return e, nil
		}
		return nil, err
	}

	e.chunks.Restore(st.Chunks)
	e.index.Restore(toRecordPtrs(st.Objects))
	e.alloc.Restore(st.FreeList, liveExtents(st.Chunks))
	e.state = Ready
	e.log.Info("engine opened", "objects", len(st.Objects), "chunks", len(st.Chunks))
	return e, nil
}

func toRecordPtrs(in map[vaultid.ObjectID]objectindex.Record) map[vaultid.ObjectID]*objectindex.Record {
	out := make(map[vaultid.ObjectID]*objectindex.Record, len(in))
	for id, rec := range in {
		rec := rec
		out[id] = &rec
	}
	return out
}

func liveExtents(chunks map[store.ChunkID]store.ChunkRecord) []alloc.Extent {
	var out []alloc.Extent
	for _, rec := range chunks {
		for _, off := range rec.Replicas {
			out = append(out, alloc.Extent{Offset: off, Length: rec.StoredLen})
		}
	}
	return out
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) requireReadyLocked() error {
	switch e.state {
	case Ready:
		return nil
	case MetadataCorrupted:
		return vaulterrors.ErrMetadataCorrupted
	default:
		return vaulterrors.ErrEngineNotReady
	}
}

// saveLocked persists the engine's full state. Caller must hold e.mu
// exclusively.
func (e *Engine) saveLocked() error {
	st := metadata.State{
		Objects:   e.index.Snapshot(),
		Chunks:    e.chunks.Snapshot(),
		FreeList:  e.alloc.FreeList(),
		HighWater: e.alloc.HighWater(),
	}
	return e.region.Save(e.dev, st, e.now())
}

// Write stores plaintext under (name, owner), superseding any prior object
// with the same pair, and returns the new object id. redundancy, when > 0,
// overrides the default replication factor for this write (the
// high-redundancy path).
func (e *Engine) Write(ctx context.Context, name, owner string, plaintext []byte, redundancy int) (vaultid.ObjectID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireReadyLocked(); err != nil {
		return vaultid.ObjectID{}, err
	}
	id, err := e.pipe.Write(ctx, name, owner, plaintext, redundancy)
	if err != nil {
		return vaultid.ObjectID{}, err
	}
	if err := e.saveLocked(); err != nil {
		return vaultid.ObjectID{}, fmt.Errorf("%w: save after write: %v", vaulterrors.ErrDeviceError, err)
	}
	return id, nil
}

// Read performs a strict read of id.
func (e *Engine) Read(ctx context.Context, id vaultid.ObjectID) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.requireReadyLocked(); err != nil {
		return nil, err
	}
	return e.pipe.Read(ctx, id)
}

// ReadGraceful performs a graceful-degradation read of id.
func (e *Engine) ReadGraceful(ctx context.Context, id vaultid.ObjectID, opts objectindex.ReadOptions) ([]byte, objectindex.CorruptionReport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.requireReadyLocked(); err != nil {
		return nil, objectindex.CorruptionReport{}, err
	}
	return e.pipe.ReadGraceful(ctx, id, opts)
}

// Delete removes id and releases every chunk it referenced.
func (e *Engine) Delete(ctx context.Context, id vaultid.ObjectID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireReadyLocked(); err != nil {
		return err
	}
	if err := e.pipe.Delete(ctx, id); err != nil {
		return err
	}
	if err := e.saveLocked(); err != nil {
		return fmt.Errorf("%w: save after delete: %v", vaulterrors.ErrDeviceError, err)
	}
	return nil
}

// List returns every object record matching filter.
func (e *Engine) List(filter objectindex.SearchFilter) ([]objectindex.Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == MetadataCorrupted {
		return nil, vaulterrors.ErrMetadataCorrupted
	}
	if e.state != Ready {
		return nil, vaulterrors.ErrEngineNotReady
	}
	return e.index.Search(filter), nil
}

// IntegrityScan runs a full classify-and-repair pass over every object's
// chunks. Repairs performed along the way do not trigger a metadata save
// (spec §4.3: chunk metadata is unchanged by repair).
func (e *Engine) IntegrityScan(ctx context.Context) (objectindex.IntegrityReport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.requireReadyLocked(); err != nil {
		return objectindex.IntegrityReport{}, err
	}
	return e.pipe.IntegrityScan(ctx)
}

// DefragReport summarizes a Defragment call.
type DefragReport struct {
	ExtentsBefore int
	ExtentsAfter  int
	Elapsed       time.Duration
}

// Defragment coalesces the free list.
func (e *Engine) Defragment() (DefragReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireReadyLocked(); err != nil {
		return DefragReport{}, err
	}
	start := e.now()
	before, after := e.alloc.Defragment()
	if err := e.saveLocked(); err != nil {
		return DefragReport{}, fmt.Errorf("%w: save after defragment: %v", vaulterrors.ErrDeviceError, err)
	}
	return DefragReport{ExtentsBefore: before, ExtentsAfter: after, Elapsed: e.now().Sub(start)}, nil
}

// TierRebalance recomputes every object's advisory tier tag.
func (e *Engine) TierRebalance() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireReadyLocked(); err != nil {
		return err
	}
	e.index.RebalanceTiers(e.now())
	if err := e.saveLocked(); err != nil {
		return fmt.Errorf("%w: save after tier rebalance: %v", vaulterrors.ErrDeviceError, err)
	}
	return nil
}

// Shutdown transitions the engine to Terminated, clearing in-memory state.
// It does not attempt a metadata save when the engine is in the
// MetadataCorrupted state.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Terminated {
		return
	}
	e.state = Shutting
	e.log.Info("engine shutting down", "objects", e.index.Len(), "chunks", e.chunks.Len())
	e.index.Restore(nil)
	e.chunks.Restore(nil)
	e.alloc.Restore(nil, nil)
	e.state = Terminated
}
