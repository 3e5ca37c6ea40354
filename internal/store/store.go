// Package store implements the chunk store (spec component C3): a
// content-addressed, deduplicated, compressed, N-replicated store of fixed
// chunks over a Device. It owns no framing of its own beyond the replica
// bytes themselves; chunk boundaries and ordering are the object index's
// concern (spec component C4).
package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"vaultfs/internal/alloc"
	"vaultfs/internal/device"
	"vaultfs/internal/logging"
	"vaultfs/internal/vaulterrors"
)

// CompressionThreshold is the minimum plaintext length a chunk must reach
// before compression is attempted. Below this, gzip's framing overhead
// tends to outweigh any savings, so the chunk is stored verbatim.
const CompressionThreshold = 100

// ExamineReport summarizes one chunk's replica health, as produced by a
// scrub pass (spec's background scrubber calls Examine per chunk).
type ExamineReport struct {
	ID            ChunkID
	ReplicaCount  int
	GoodCount     int
	RepairedCount int
	Unrecoverable bool
}

// Store is the chunk store. One Store instance owns one contiguous data
// region of a Device, via the allocator. All mutating calls (Put, Release,
// and the repair path inside Get/Examine) take Store's exclusive lock;
// Get's classification/read path runs under the shared lock and only
// escalates to exclusive when a repair write is actually needed, matching
// the engine's single-writer / many-reader model (spec §5).
type Store struct {
	mu sync.RWMutex

	dev   device.Device
	alloc *alloc.Allocator
	log   *slog.Logger

	replicas int // N, the default replication factor for new chunks

	table map[ChunkID]*ChunkRecord
}

// New creates a Store writing replicated chunks through alloc onto dev.
// replicas is the default replication factor (N) for new chunks written via
// Put; PutReplicated allows a per-call override (e.g. R for high-redundancy
// writes).
func New(dev device.Device, allocator *alloc.Allocator, replicas int, logger *slog.Logger) *Store {
	if replicas < 1 {
		replicas = 1
	}
	logger = logging.Default(logger)
	return &Store{
		dev:      dev,
		alloc:    allocator,
		log:      logger.With("component", "store"),
		replicas: replicas,
		table:    make(map[ChunkID]*ChunkRecord),
	}
}

// Restore installs a previously-persisted chunk table, e.g. after metadata
// load. It replaces whatever table the Store currently holds.
func (s *Store) Restore(table map[ChunkID]*ChunkRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = table
	if s.table == nil {
		s.table = make(map[ChunkID]*ChunkRecord)
	}
}

// Snapshot returns a deep copy of the chunk table, for metadata persistence.
func (s *Store) Snapshot() map[ChunkID]ChunkRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ChunkID]ChunkRecord, len(s.table))
	for id, rec := range s.table {
		out[id] = rec.clone()
	}
	return out
}

// Put stores plaintext at the store's default replication factor, returning
// its content address. If a chunk with the same content already exists, its
// reference count is incremented and no new bytes are written (dedup).
func (s *Store) Put(ctx context.Context, plaintext []byte) (ChunkID, error) {
	return s.PutReplicated(ctx, plaintext, s.replicas)
}

// PutReplicated is Put with an explicit replica count, used for
// high-redundancy writes (spec's R, typically >= 3).
func (s *Store) PutReplicated(ctx context.Context, plaintext []byte, n int) (ChunkID, error) {
	if n < 1 {
		n = 1
	}
	id := SumChunkID(plaintext)

	s.mu.Lock()
	if rec, ok := s.table[id]; ok {
		rec.RefCount++
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	stored, compressed := maybeCompress(plaintext)
	checksum := SumChecksum(stored)

	offsets := make([]uint64, n)
	s.mu.Lock()
	for i := range offsets {
		off, err := s.alloc.Allocate(uint64(len(stored)))
		if err != nil {
			s.mu.Unlock()
			return ChunkID{}, fmt.Errorf("%w: allocate chunk replica: %v", vaulterrors.ErrOutOfSpace, err)
		}
		offsets[i] = off
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, off := range offsets {
		off := off
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := s.dev.WriteAt(off, stored); err != nil {
				return fmt.Errorf("%w: write chunk replica: %v", vaulterrors.ErrDeviceError, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ChunkID{}, err
	}

	rec := &ChunkRecord{
		PlaintextLen:   uint64(len(plaintext)),
		StoredLen:      uint64(len(stored)),
		StoredChecksum: checksum,
		RefCount:       1,
		Replicas:       offsets,
	}
	s.mu.Lock()
	s.table[id] = rec
	s.mu.Unlock()

	s.log.Debug("chunk stored", "chunk_id", id, "replicas", n, "compressed", compressed, "stored_len", len(stored), "plaintext_len", len(plaintext))
	return id, nil
}

// Get reads and returns the plaintext of id. It reads every replica and
// uses the first one whose stored bytes match the recorded checksum. Every
// bad replica is repaired in place from that good replica, silently and
// idempotently. ErrChunkUnrecoverable is returned if every replica is
// bad.
func (s *Store) Get(ctx context.Context, id ChunkID) ([]byte, error) {
	s.mu.RLock()
	rec, ok := s.table[id]
	var snap ChunkRecord
	if ok {
		snap = rec.clone()
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", vaulterrors.ErrChunkMissing, id)
	}

	var good []byte
	var goodIdx = -1
	var badIdx []int
	for i, off := range snap.Replicas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := s.dev.ReadAt(off, snap.StoredLen)
		if err != nil {
			badIdx = append(badIdx, i)
			continue
		}
		if SumChecksum(data) != snap.StoredChecksum {
			badIdx = append(badIdx, i)
			continue
		}
		if goodIdx == -1 {
			good = data
			goodIdx = i
		}
	}

	if goodIdx == -1 {
		return nil, fmt.Errorf("%w: %s", vaulterrors.ErrChunkUnrecoverable, id)
	}

	if len(badIdx) > 0 {
		s.repair(id, snap, good, badIdx)
	}

	return s.decode(snap, good)
}

// Examine reads every replica of id, classifying each as good or bad,
// repairing any bad replica it can, and reporting the outcome. Used by the
// background scrubber; never itself triggers a metadata save.
func (s *Store) Examine(ctx context.Context, id ChunkID) (ExamineReport, error) {
	s.mu.RLock()
	rec, ok := s.table[id]
	var snap ChunkRecord
	if ok {
		snap = rec.clone()
	}
	s.mu.RUnlock()
	if !ok {
		return ExamineReport{}, fmt.Errorf("%w: %s", vaulterrors.ErrChunkMissing, id)
	}

	report := ExamineReport{ID: id, ReplicaCount: len(snap.Replicas)}
	var good []byte
	var badIdx []int
	for i, off := range snap.Replicas {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		data, err := s.dev.ReadAt(off, snap.StoredLen)
		if err != nil || SumChecksum(data) != snap.StoredChecksum {
			badIdx = append(badIdx, i)
			continue
		}
		report.GoodCount++
		if good == nil {
			good = data
		}
	}

	if good == nil {
		report.Unrecoverable = true
		return report, nil
	}
	if len(badIdx) > 0 {
		s.repair(id, snap, good, badIdx)
		report.RepairedCount = len(badIdx)
	}
	return report, nil
}

// repair best-effort rewrites the replicas at badIdx with goodData. Failures
// are logged and otherwise ignored: repair is opportunistic, not a
// correctness requirement of the read that triggered it. The writes happen
// under the exclusive lock, and are skipped if id's record has since been
// released or its replicas moved.
func (s *Store) repair(id ChunkID, rec ChunkRecord, goodData []byte, badIdx []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.table[id]; !ok || !slices.Equal(cur.Replicas, rec.Replicas) {
		return
	}
	for _, i := range badIdx {
		off := rec.Replicas[i]
		if err := s.dev.WriteAt(off, goodData); err != nil {
			s.log.Warn("chunk replica repair failed", "offset", off, "error", err)
		}
	}
}

func (s *Store) decode(rec ChunkRecord, stored []byte) ([]byte, error) {
	if !rec.Compressed() {
		return stored, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaulterrors.ErrDecompressionFailed, err)
	}
	defer zr.Close()
	out := make([]byte, 0, rec.PlaintextLen)
	buf := bytes.NewBuffer(out)
	if _, err := buf.ReadFrom(zr); err != nil {
		return nil, fmt.Errorf("%w: %v", vaulterrors.ErrDecompressionFailed, err)
	}
	return buf.Bytes(), nil
}

// maybeCompress gzips plaintext when it meets CompressionThreshold and doing
// so actually shrinks it; otherwise it returns plaintext verbatim. The
// caller distinguishes the two cases by comparing stored length to
// plaintext length, never via a separate flag.
func maybeCompress(plaintext []byte) (stored []byte, compressed bool) {
	if len(plaintext) < CompressionThreshold {
		return plaintext, false
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(plaintext); err != nil {
		return plaintext, false
	}
	if err := zw.Close(); err != nil {
		return plaintext, false
	}
	if buf.Len() >= len(plaintext) {
		return plaintext, false
	}
	return buf.Bytes(), true
}

// Release decrements id's reference count, freeing its replicas and erasing
// its table entry once the count reaches zero. Releasing an id with no
// remaining references is a no-op.
func (s *Store) Release(ctx context.Context, id ChunkID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.table[id]
	if !ok {
		return nil
	}
	rec.RefCount--
	if rec.RefCount > 0 {
		return nil
	}
	for _, off := range rec.Replicas {
		s.alloc.Free(off, rec.StoredLen)
	}
	delete(s.table, id)
	return nil
}

// Record returns a copy of id's chunk record metadata, without reading any
// replica bytes.
func (s *Store) Record(id ChunkID) (ChunkRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.table[id]
	if !ok {
		return ChunkRecord{}, false
	}
	return rec.clone(), true
}

// Has reports whether id currently has a table entry.
func (s *Store) Has(id ChunkID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.table[id]
	return ok
}

// Len returns the number of distinct chunks currently stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}

// IDs returns every chunk id currently in the table, in no particular order.
// Used by the scrubber to enumerate chunks to Examine.
func (s *Store) IDs() []ChunkID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChunkID, 0, len(s.table))
	for id := range s.table {
		out = append(out, id)
	}
	return out
}
