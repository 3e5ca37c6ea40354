package metadata

import (
	"errors"
	"testing"
	"time"

	"vaultfs/internal/alloc"
	"vaultfs/internal/device"
	"vaultfs/internal/objectindex"
	"vaultfs/internal/store"
	"vaultfs/internal/vaulterrors"
	"vaultfs/internal/vaultid"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// buildTestState returns a minimal non-empty State referencing one object
// and the one chunk it owns.
func buildTestState(oid vaultid.ObjectID, cid store.ChunkID) State {
	return State{
		Objects: map[vaultid.ObjectID]objectindex.Record{
			oid: {
				ID:       oid,
				Name:     "doc",
				Owner:    "owner",
				Size:     14,
				Checksum: store.SumChecksum([]byte("chunk contents")),
				ChunkIDs: []store.ChunkID{cid},
			},
		},
		Chunks: map[store.ChunkID]store.ChunkRecord{
			cid: {
				PlaintextLen:   14,
				StoredLen:      14,
				StoredChecksum: store.SumChecksum([]byte("chunk contents")),
				RefCount:       1,
				Replicas:       []uint64{DefaultRegionSize, DefaultRegionSize + 512},
			},
		},
		FreeList:  []alloc.Extent{{Offset: DefaultRegionSize + 1024, Length: 4096}},
		HighWater: DefaultRegionSize + 5120,
	}
}

func TestLoadAllZeroInitializesEmptyState(t *testing.T) {
	dev := device.NewMemoryDevice(DefaultRegionSize)
	r := NewRegion(DefaultRegionSize, DefaultSectionCount)

	state, err := r.Load(dev, fixedClock(time.UnixMilli(1000)))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(state.Objects) != 0 || len(state.Chunks) != 0 {
		t.Fatalf("expected empty state, got %+v", state)
	}

	// A second load should now find a valid, authoritative section rather
	// than re-initializing.
	state2, err := r.Load(dev, fixedClock(time.UnixMilli(2000)))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(state2.Objects) != 0 {
		t.Fatalf("expected still-empty state, got %+v", state2)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dev := device.NewMemoryDevice(DefaultRegionSize)
	r := NewRegion(DefaultRegionSize, DefaultSectionCount)

	oid := vaultid.NewObjectID()
	cid := store.SumChunkID([]byte("chunk contents"))
	want := buildTestState(oid, cid)

	if err := r.Save(dev, want, time.UnixMilli(5000)); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := r.Load(dev, fixedClock(time.UnixMilli(6000)))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Objects) != 1 || len(loaded.Chunks) != 1 {
		t.Fatalf("expected 1 object and 1 chunk, got %+v", loaded)
	}
	got, ok := loaded.Objects[oid]
	if !ok || got.Name != "doc" {
		t.Fatalf("expected round-tripped object record, got %+v ok=%v", got, ok)
	}
	if loaded.HighWater != want.HighWater {
		t.Fatalf("expected high water %d, got %d", want.HighWater, loaded.HighWater)
	}
}

func TestLoadReconcilesFromNewestValidSection(t *testing.T) {
	dev := device.NewMemoryDevice(DefaultRegionSize)
	r := NewRegion(DefaultRegionSize, DefaultSectionCount)

	oid := vaultid.NewObjectID()
	cid := store.SumChunkID([]byte("scenario 6"))
	state := buildTestState(oid, cid)

	if err := r.Save(dev, state, time.UnixMilli(9000)); err != nil {
		t.Fatalf("save: %v", err)
	}

	secSize := r.sectionSize()
	zeros := make([]byte, secSize)
	if err := dev.WriteAt(0, zeros); err != nil {
		t.Fatalf("zero section 0: %v", err)
	}
	if err := dev.WriteAt(secSize, zeros); err != nil {
		t.Fatalf("zero section 1: %v", err)
	}

	r2 := NewRegion(DefaultRegionSize, DefaultSectionCount)
	loaded, err := r2.Load(dev, fixedClock(time.UnixMilli(9500)))
	if err != nil {
		t.Fatalf("load after destroying sections 0 and 1: %v", err)
	}
	if _, ok := loaded.Objects[oid]; !ok {
		t.Fatal("expected object to survive via section 2")
	}
}

func TestLoadReturnsCorruptedWhenNoSectionValidatesAndNonEmpty(t *testing.T) {
	dev := device.NewMemoryDevice(DefaultRegionSize)
	garbage := make([]byte, DefaultRegionSize)
	for i := range garbage {
		garbage[i] = byte(i%251 + 1)
	}
	if err := dev.WriteAt(0, garbage); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	r := NewRegion(DefaultRegionSize, DefaultSectionCount)
	_, err := r.Load(dev, fixedClock(time.UnixMilli(1)))
	if !errors.Is(err, vaulterrors.ErrMetadataCorrupted) {
		t.Fatalf("expected ErrMetadataCorrupted, got %v", err)
	}
	if !r.Corrupted() {
		t.Fatal("expected region to record the corrupted state")
	}
}
