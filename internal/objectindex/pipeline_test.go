package objectindex

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"vaultfs/internal/alloc"
	"vaultfs/internal/device"
	"vaultfs/internal/store"
	"vaultfs/internal/vaulterrors"
)

func newTestPipeline(t *testing.T, deviceSize uint64) (*Pipeline, *device.MemoryDevice) {
	t.Helper()
	dev := device.NewMemoryDevice(deviceSize)
	a := alloc.New(0, dev.Size(), 512)
	chunks := store.New(dev, a, 2, nil)
	return New(NewIndex(), chunks, nil, nil), dev
}

func TestWriteReadRoundTrip(t *testing.T) {
	p, _ := newTestPipeline(t, 1<<20)
	ctx := context.Background()
	want := []byte("Hello, World! This is a test file.")

	id, err := p.Write(ctx, "greeting.txt", "alice", want, 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := p.Read(ctx, id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEmptyObjectRoundTrip(t *testing.T) {
	p, _ := newTestPipeline(t, 1<<20)
	ctx := context.Background()

	id, err := p.Write(ctx, "empty", "bob", nil, 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, ok := p.Index().Get(id)
	if !ok {
		t.Fatal("expected record")
	}
	if len(rec.ChunkIDs) != 0 {
		t.Fatalf("expected zero chunks for empty object, got %d", len(rec.ChunkIDs))
	}
	got, err := p.Read(ctx, id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty bytes, got %d", len(got))
	}
	if rec.Checksum != store.SumChecksum(nil) {
		t.Fatal("expected checksum of empty string")
	}
}

func TestExactChunkSizeWritesOneChunk(t *testing.T) {
	p, _ := newTestPipeline(t, 1<<20)
	ctx := context.Background()
	data := bytes.Repeat([]byte("z"), ChunkSize)

	id, err := p.Write(ctx, "one-chunk", "carol", data, 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, _ := p.Index().Get(id)
	if len(rec.ChunkIDs) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(rec.ChunkIDs))
	}
}

func TestOneByteOverChunkSizeWritesTwoChunks(t *testing.T) {
	p, _ := newTestPipeline(t, 1<<20)
	ctx := context.Background()
	data := bytes.Repeat([]byte("z"), ChunkSize+1)

	id, err := p.Write(ctx, "two-chunks", "carol", data, 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, _ := p.Index().Get(id)
	if len(rec.ChunkIDs) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(rec.ChunkIDs))
	}
}

func TestWriteSupersedesSameNameOwner(t *testing.T) {
	p, _ := newTestPipeline(t, 1<<20)
	ctx := context.Background()

	id1, err := p.Write(ctx, "doc", "dave", []byte("version one"), 0)
	if err != nil {
		t.Fatalf("write 1: %v", err)
	}
	id2, err := p.Write(ctx, "doc", "dave", []byte("version two"), 0)
	if err != nil {
		t.Fatalf("write 2: %v", err)
	}
	if id1 == id2 {
		t.Fatal("expected a new object id on supersede")
	}
	if _, err := p.Read(ctx, id1); !errors.Is(err, vaulterrors.ErrObjectNotFound) {
		t.Fatalf("expected superseded object to be gone, got %v", err)
	}
	got, err := p.Read(ctx, id2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "version two" {
		t.Fatalf("got %q", got)
	}
}

func TestDeduplicationAcrossNames(t *testing.T) {
	p, _ := newTestPipeline(t, 1<<20)
	ctx := context.Background()
	payload := bytes.Repeat([]byte("dedup-me-"), 1112) // 10008 bytes

	idX, err := p.Write(ctx, "x", "eve", payload, 0)
	if err != nil {
		t.Fatalf("write x: %v", err)
	}
	before := p.Chunks().Len()

	idY, err := p.Write(ctx, "y", "eve", payload, 0)
	if err != nil {
		t.Fatalf("write y: %v", err)
	}
	after := p.Chunks().Len()
	if after != before {
		t.Fatalf("expected chunk table to grow by zero, got %d -> %d", before, after)
	}

	recX, _ := p.Index().Get(idX)
	for _, cid := range recX.ChunkIDs {
		crec, ok := p.Chunks().Record(cid)
		if !ok {
			t.Fatalf("missing chunk record for %s", cid)
		}
		if crec.RefCount != 2 {
			t.Fatalf("expected refcount 2, got %d", crec.RefCount)
		}
	}

	if err := p.Delete(ctx, idX); err != nil {
		t.Fatalf("delete: %v", err)
	}
	recY, _ := p.Index().Get(idY)
	for _, cid := range recY.ChunkIDs {
		crec, ok := p.Chunks().Record(cid)
		if !ok {
			t.Fatalf("expected chunk %s to survive", cid)
		}
		if crec.RefCount != 1 {
			t.Fatalf("expected refcount 1 after deleting x, got %d", crec.RefCount)
		}
	}
}

func TestStrictReadFailsOnUnrecoverableChunk(t *testing.T) {
	p, dev := newTestPipeline(t, 1<<20)
	ctx := context.Background()
	data := bytes.Repeat([]byte("v"), 600)

	id, err := p.Write(ctx, "victim", "frank", data, 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, _ := p.Index().Get(id)
	crec, _ := p.Chunks().Record(rec.ChunkIDs[0])
	for _, off := range crec.Replicas {
		if err := dev.Corrupt(off, bytes.Repeat([]byte{0xff}, int(crec.StoredLen))); err != nil {
			t.Fatalf("corrupt: %v", err)
		}
	}

	_, err = p.Read(ctx, id)
	if !errors.Is(err, vaulterrors.ErrChunkMissing) {
		t.Fatalf("expected ErrChunkMissing wrapping unrecoverable chunk, got %v", err)
	}
}

func TestGracefulDegradationMeetsThreshold(t *testing.T) {
	p, dev := newTestPipeline(t, 4<<20)
	ctx := context.Background()
	// Each chunk holds a different byte value so the ten chunks don't
	// deduplicate into one shared record.
	data := make([]byte, ChunkSize*10)
	for i := range data {
		data[i] = byte(0x40 + i/ChunkSize)
	}

	id, err := p.Write(ctx, "big", "grace", data, 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, _ := p.Index().Get(id)
	for _, idx := range []int{3, 7} {
		crec, _ := p.Chunks().Record(rec.ChunkIDs[idx])
		for _, off := range crec.Replicas {
			if err := dev.Corrupt(off, bytes.Repeat([]byte{0xff}, int(crec.StoredLen))); err != nil {
				t.Fatalf("corrupt: %v", err)
			}
		}
	}

	got, report, err := p.ReadGraceful(ctx, id, ReadOptions{MinRecoveryRate: 70, Fill: Fill{Kind: FillZeros}})
	if err != nil {
		t.Fatalf("graceful read: %v", err)
	}
	if len(got) != ChunkSize*10 {
		t.Fatalf("expected full-length reconstruction, got %d bytes", len(got))
	}
	zeroRange := func(lo, hi int) bool {
		for _, b := range got[lo:hi] {
			if b != 0 {
				return false
			}
		}
		return true
	}
	if !zeroRange(3*ChunkSize, 4*ChunkSize) || !zeroRange(7*ChunkSize, 8*ChunkSize) {
		t.Fatal("expected zero-filled ranges at corrupted chunks")
	}
	if report.RecoveryRate != 80.0 {
		t.Fatalf("expected recovery_rate=80.0, got %v", report.RecoveryRate)
	}
	if report.CorruptedChunks != 2 {
		t.Fatalf("expected corrupted_chunks=2, got %d", report.CorruptedChunks)
	}
}

func TestGracefulDegradationBelowThreshold(t *testing.T) {
	p, dev := newTestPipeline(t, 4<<20)
	ctx := context.Background()
	// Each chunk holds a different byte value so the ten chunks don't
	// deduplicate into one shared record.
	data := make([]byte, ChunkSize*10)
	for i := range data {
		data[i] = byte(0x70 + i/ChunkSize)
	}

	id, err := p.Write(ctx, "big2", "grace", data, 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, _ := p.Index().Get(id)
	for _, idx := range []int{0, 1, 2, 3, 4, 5} {
		crec, _ := p.Chunks().Record(rec.ChunkIDs[idx])
		for _, off := range crec.Replicas {
			if err := dev.Corrupt(off, bytes.Repeat([]byte{0xee}, int(crec.StoredLen))); err != nil {
				t.Fatalf("corrupt: %v", err)
			}
		}
	}

	_, report, err := p.ReadGraceful(ctx, id, ReadOptions{MinRecoveryRate: 60, Fill: Fill{Kind: FillZeros}})
	if !errors.Is(err, vaulterrors.ErrRecoveryRateBelowThreshold) {
		t.Fatalf("expected ErrRecoveryRateBelowThreshold, got %v", err)
	}
	if report.RecoveryRate != 40.0 {
		t.Fatalf("expected recovery_rate=40.0, got %v", report.RecoveryRate)
	}
}

func TestIntegrityScanCleanDeviceReportsZero(t *testing.T) {
	p, _ := newTestPipeline(t, 1<<20)
	ctx := context.Background()
	if _, err := p.Write(ctx, "clean", "henry", []byte("nothing wrong here"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	report, err := p.IntegrityScan(ctx)
	if err != nil {
		t.Fatalf("integrity scan: %v", err)
	}
	if report.FilesCorrupted != 0 || report.ChunksCorrupted != 0 {
		t.Fatalf("expected zero corruptions, got %+v", report)
	}
}

func TestTierRebalance(t *testing.T) {
	p, _ := newTestPipeline(t, 1<<20)
	ctx := context.Background()
	id, err := p.Write(ctx, "hot-doc", "ivy", []byte("payload"), 0)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	now := time.Now()
	for range 11 {
		p.Index().Touch(id, now)
	}
	p.Index().RebalanceTiers(now)
	rec, _ := p.Index().Get(id)
	if rec.Tier != TierHot {
		t.Fatalf("expected HOT tier after 11 recent accesses, got %s", rec.Tier)
	}
}

func TestSearchFiltersByOwnerAndNameSubstring(t *testing.T) {
	p, _ := newTestPipeline(t, 1<<20)
	ctx := context.Background()
	if _, err := p.Write(ctx, "report-jan.csv", "jill", []byte("a"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := p.Write(ctx, "photo.png", "jill", []byte("b"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := p.Write(ctx, "report-feb.csv", "jack", []byte("c"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	results := p.Index().Search(SearchFilter{NameSubstring: "report", Owner: "jill"})
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if results[0].Name != "report-jan.csv" {
		t.Fatalf("unexpected match: %+v", results[0])
	}
}
