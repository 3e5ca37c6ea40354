package objectindex

import (
	"testing"
	"time"

	"vaultfs/internal/vaultid"
)

func TestIndexLookupByNameOwner(t *testing.T) {
	ix := NewIndex()
	id := vaultid.NewObjectID()
	ix.Insert(Record{ID: id, Name: "a", Owner: "o1"})

	rec, ok := ix.Lookup("a", "o1")
	if !ok || rec.ID != id {
		t.Fatalf("expected lookup hit for (a, o1), got ok=%v rec=%+v", ok, rec)
	}
	if _, ok := ix.Lookup("a", "o2"); ok {
		t.Fatal("expected no match for a different owner")
	}
}

func TestIndexInsertReplacesSecondaryMapping(t *testing.T) {
	ix := NewIndex()
	id1 := vaultid.NewObjectID()
	id2 := vaultid.NewObjectID()
	ix.Insert(Record{ID: id1, Name: "doc", Owner: "o1"})
	ix.Insert(Record{ID: id2, Name: "doc", Owner: "o1"})

	rec, ok := ix.Lookup("doc", "o1")
	if !ok || rec.ID != id2 {
		t.Fatalf("expected the later insert to win the name+owner slot, got %+v", rec)
	}
}

func TestIndexDeleteClearsSecondaryMapping(t *testing.T) {
	ix := NewIndex()
	id := vaultid.NewObjectID()
	ix.Insert(Record{ID: id, Name: "doc", Owner: "o1"})
	ix.Delete(id)

	if _, ok := ix.Lookup("doc", "o1"); ok {
		t.Fatal("expected lookup to miss after delete")
	}
	if _, ok := ix.Get(id); ok {
		t.Fatal("expected get to miss after delete")
	}
}

func TestIndexAllIsDeterministicallyOrdered(t *testing.T) {
	ix := NewIndex()
	for i := 0; i < 20; i++ {
		ix.Insert(Record{ID: vaultid.NewObjectID(), Name: "x", Owner: "o"})
	}
	first := ix.All()
	second := ix.All()
	if len(first) != len(second) {
		t.Fatal("expected stable count across calls")
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("expected deterministic order at index %d", i)
		}
	}
}

func TestTouchUpdatesAccessStats(t *testing.T) {
	ix := NewIndex()
	id := vaultid.NewObjectID()
	ix.Insert(Record{ID: id, Name: "doc", Owner: "o"})

	at := time.Now()
	ix.Touch(id, at)
	ix.Touch(id, at.Add(time.Minute))

	rec, _ := ix.Get(id)
	if rec.AccessCount != 2 {
		t.Fatalf("expected access count 2, got %d", rec.AccessCount)
	}
	if !rec.LastAccess.Equal(at.Add(time.Minute)) {
		t.Fatalf("expected last access to be the most recent touch")
	}
}

func TestClassifyTierThresholds(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		rec    Record
		expect Tier
	}{
		{"hot: recent and frequent", Record{LastAccess: now.Add(-time.Hour), AccessCount: 11}, TierHot},
		{"warm: recent but infrequent", Record{LastAccess: now.Add(-time.Hour), AccessCount: 1}, TierWarm},
		{"warm: old but frequently accessed overall", Record{LastAccess: now.Add(-60 * 24 * time.Hour), AccessCount: 4}, TierWarm},
		{"cold: old and rarely accessed", Record{LastAccess: now.Add(-60 * 24 * time.Hour), AccessCount: 1}, TierCold},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := classifyTier(c.rec, now)
			if got != c.expect {
				t.Fatalf("got %s, want %s", got, c.expect)
			}
		})
	}
}
