package objectindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vaultfs/internal/logging"
	"vaultfs/internal/store"
	"vaultfs/internal/vaulterrors"
	"vaultfs/internal/vaultid"
)

// Clock abstracts time.Now so tests can inject deterministic timestamps.
type Clock func() time.Time

// Pipeline is the read/write orchestration layer binding an Index to a
// chunk Store. It performs no metadata persistence itself; the engine
// calls into the metadata region after each mutating Pipeline call
// succeeds (spec §4.3's "every write/delete/collection ends with a save").
type Pipeline struct {
	index *Index
	chunks *store.Store
	log   *slog.Logger
	now   Clock
}

// New creates a Pipeline over index and chunks.
func New(index *Index, chunks *store.Store, logger *slog.Logger, now Clock) *Pipeline {
	logger = logging.Default(logger)
	if now == nil {
		now = time.Now
	}
	return &Pipeline{index: index, chunks: chunks, log: logger.With("component", "objectindex"), now: now}
}

// Index returns the underlying object index.
func (p *Pipeline) Index() *Index { return p.index }

// Chunks returns the underlying chunk store.
func (p *Pipeline) Chunks() *store.Store { return p.chunks }

// Write stores plaintext under (name, owner), superseding any existing
// object with the same pair, and returns the new object's id. redundancy
// overrides the store's default replication factor when > 0 (the
// high-redundancy write path, R >= 3).
func (p *Pipeline) Write(ctx context.Context, name, owner string, plaintext []byte, redundancy int) (vaultid.ObjectID, error) {
	if prior, ok := p.index.Lookup(name, owner); ok {
		if err := p.Delete(ctx, prior.ID); err != nil {
			return vaultid.ObjectID{}, fmt.Errorf("supersede prior object: %w", err)
		}
	}

	checksum := store.SumChecksum(plaintext)
	windows := Split(plaintext)
	chunkIDs := make([]store.ChunkID, 0, len(windows))

	var storedTotal, plainTotal uint64
	for _, w := range windows {
		var id store.ChunkID
		var err error
		if redundancy > 0 {
			id, err = p.chunks.PutReplicated(ctx, w, redundancy)
		} else {
			id, err = p.chunks.Put(ctx, w)
		}
		if err != nil {
			p.revertChunks(ctx, chunkIDs)
			return vaultid.ObjectID{}, err
		}
		chunkIDs = append(chunkIDs, id)
		if rec, ok := p.chunks.Record(id); ok {
			storedTotal += rec.StoredLen
			plainTotal += rec.PlaintextLen
		}
	}

	ratio := 1.0
	if plainTotal > 0 {
		ratio = float64(storedTotal) / float64(plainTotal)
	}

	now := p.now()
	rec := Record{
		ID:               vaultid.NewObjectID(),
		Name:             name,
		Owner:            owner,
		Size:             uint64(len(plaintext)),
		Checksum:         checksum,
		ChunkIDs:         chunkIDs,
		CreatedAt:        now,
		ModifiedAt:       now,
		Tier:             TierHot,
		CompressionRatio: ratio,
	}
	p.index.Insert(rec)
	p.log.Debug("object written", "object_id", rec.ID, "name", name, "owner", owner, "size", rec.Size, "chunks", len(chunkIDs))
	return rec.ID, nil
}

// revertChunks releases chunks already inserted by a write that failed
// partway through, per spec §4.4's write-failure propagation policy.
func (p *Pipeline) revertChunks(ctx context.Context, ids []store.ChunkID) {
	for _, id := range ids {
		if err := p.chunks.Release(ctx, id); err != nil {
			p.log.Warn("failed to revert partial chunk insert", "chunk_id", id, "error", err)
		}
	}
}

// Read performs a strict read: any unrecoverable chunk aborts the read, and
// the reassembled bytes are checked against the object's stored global
// checksum.
func (p *Pipeline) Read(ctx context.Context, id vaultid.ObjectID) ([]byte, error) {
	rec, ok := p.index.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", vaulterrors.ErrObjectNotFound, id)
	}

	var buf bytes.Buffer
	buf.Grow(int(rec.Size))
	for _, cid := range rec.ChunkIDs {
		data, err := p.chunks.Get(ctx, cid)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", vaulterrors.ErrChunkMissing, cid, err)
		}
		buf.Write(data)
	}

	if store.SumChecksum(buf.Bytes()) != rec.Checksum {
		return nil, fmt.Errorf("%w: object %s", vaulterrors.ErrGlobalChecksumMismatch, id)
	}

	p.index.Touch(id, p.now())
	return buf.Bytes(), nil
}

// ReadOptions configures a graceful-degradation read.
type ReadOptions struct {
	MinRecoveryRate float64 // percent, 0-100
	Fill            Fill
}

// CorruptionReport summarizes a graceful-degradation read's outcome.
type CorruptionReport struct {
	TotalChunks          int
	CorruptedChunks      int
	RecoveredChunks      int
	RecoveryRate         float64 // percent
	CorruptedChunkIDs    []store.ChunkID
	PartialDataAvailable bool
}

// ReadGraceful performs a graceful-degradation read: unrecoverable chunks
// are filled per opts.Fill instead of aborting the read. The global
// checksum is never verified on this path (spec §4.4).
func (p *Pipeline) ReadGraceful(ctx context.Context, id vaultid.ObjectID, opts ReadOptions) ([]byte, CorruptionReport, error) {
	rec, ok := p.index.Get(id)
	if !ok {
		return nil, CorruptionReport{}, fmt.Errorf("%w: %s", vaulterrors.ErrObjectNotFound, id)
	}

	report := CorruptionReport{TotalChunks: len(rec.ChunkIDs)}
	var buf bytes.Buffer
	var recoveredBytes, totalBytes uint64

	for _, cid := range rec.ChunkIDs {
		plainLen := ChunkSize
		if crec, ok := p.chunks.Record(cid); ok {
			plainLen = int(crec.PlaintextLen)
		}
		totalBytes += uint64(plainLen)

		data, err := p.chunks.Get(ctx, cid)
		if err != nil {
			report.CorruptedChunks++
			report.CorruptedChunkIDs = append(report.CorruptedChunkIDs, cid)
			buf.Write(opts.Fill.buffer(plainLen))
			continue
		}
		report.RecoveredChunks++
		recoveredBytes += uint64(len(data))
		buf.Write(data)
	}

	if totalBytes > 0 {
		report.RecoveryRate = float64(recoveredBytes) / float64(totalBytes) * 100
	} else {
		report.RecoveryRate = 100
	}
	report.PartialDataAvailable = report.RecoveredChunks > 0

	if report.RecoveryRate < opts.MinRecoveryRate {
		return nil, report, fmt.Errorf("%w: %.1f%% < %.1f%%", vaulterrors.ErrRecoveryRateBelowThreshold, report.RecoveryRate, opts.MinRecoveryRate)
	}
	return buf.Bytes(), report, nil
}

// Delete removes the object and releases every chunk it referenced,
// freeing replica extents for any chunk whose refcount reaches zero.
func (p *Pipeline) Delete(ctx context.Context, id vaultid.ObjectID) error {
	rec, ok := p.index.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", vaulterrors.ErrObjectNotFound, id)
	}
	for _, cid := range rec.ChunkIDs {
		if err := p.chunks.Release(ctx, cid); err != nil {
			return err
		}
	}
	p.index.Delete(id)
	return nil
}

// IntegrityReport is the result of a full integrity scan.
type IntegrityReport struct {
	FilesTotal      int
	FilesCorrupted  int
	ChunksTotal     int
	ChunksCorrupted int
	Elapsed         time.Duration
}

// IntegrityScan runs the classify-and-repair step over every chunk
// referenced by every object, reporting totals.
func (p *Pipeline) IntegrityScan(ctx context.Context) (IntegrityReport, error) {
	start := p.now()
	report := IntegrityReport{}
	seen := make(map[store.ChunkID]bool)

	for _, rec := range p.index.All() {
		report.FilesTotal++
		fileCorrupted := false
		for _, cid := range rec.ChunkIDs {
			if seen[cid] {
				continue
			}
			seen[cid] = true
			report.ChunksTotal++
			exam, err := p.chunks.Examine(ctx, cid)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return report, err
				}
				report.ChunksCorrupted++
				fileCorrupted = true
				continue
			}
			if exam.Unrecoverable || exam.RepairedCount > 0 {
				report.ChunksCorrupted++
				fileCorrupted = true
			}
		}
		if fileCorrupted {
			report.FilesCorrupted++
		}
	}

	report.Elapsed = p.now().Sub(start)
	return report, nil
}
