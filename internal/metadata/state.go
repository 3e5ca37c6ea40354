package metadata

import (
	"time"

	"vaultfs/internal/alloc"
	"vaultfs/internal/objectindex"
	"vaultfs/internal/store"
	"vaultfs/internal/vaultid"
)

// State is the full in-memory state a metadata section serializes: the
// object index, the chunk table, and the free list (spec §3's "Ownership"
// note — the metadata region exclusively owns these three).
type State struct {
	Objects   map[vaultid.ObjectID]objectindex.Record
	Chunks    map[store.ChunkID]store.ChunkRecord
	FreeList  []alloc.Extent
	HighWater uint64
}

// stateDTO is State's wire shape: map keys that aren't plain strings (byte
// array ids) are flattened into slices with an explicit id field, since
// encoding/json cannot marshal array-typed map keys.
type stateDTO struct {
	Objects   []objectDTO   `json:"objects"`
	Chunks    []chunkDTO    `json:"chunks"`
	FreeList  []extentDTO   `json:"free_list"`
	HighWater uint64        `json:"high_water"`
}

type objectDTO struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Owner            string    `json:"owner"`
	Size             uint64    `json:"size"`
	Checksum         string    `json:"checksum"`
	ChunkIDs         []string  `json:"chunk_ids"`
	CreatedAt        time.Time `json:"created_at"`
	ModifiedAt       time.Time `json:"modified_at"`
	AccessCount      int64     `json:"access_count"`
	LastAccess       time.Time `json:"last_access"`
	Tier             int       `json:"tier"`
	CompressionRatio float64   `json:"compression_ratio"`
}

type chunkDTO struct {
	ID             string   `json:"id"`
	PlaintextLen   uint64   `json:"plaintext_len"`
	StoredLen      uint64   `json:"stored_len"`
	StoredChecksum string   `json:"stored_checksum"`
	RefCount       int64    `json:"ref_count"`
	Replicas       []uint64 `json:"replicas"`
}

type extentDTO struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

func (s State) toDTO() (stateDTO, error) {
	dto := stateDTO{HighWater: s.HighWater}

	dto.Objects = make([]objectDTO, 0, len(s.Objects))
	for id, rec := range s.Objects {
		chunkIDs := make([]string, len(rec.ChunkIDs))
		for i, cid := range rec.ChunkIDs {
			chunkIDs[i] = cid.String()
		}
		dto.Objects = append(dto.Objects, objectDTO{
			ID:               id.String(),
			Name:             rec.Name,
			Owner:            rec.Owner,
			Size:             rec.Size,
			Checksum:         rec.Checksum.String(),
			ChunkIDs:         chunkIDs,
			CreatedAt:        rec.CreatedAt,
			ModifiedAt:       rec.ModifiedAt,
			AccessCount:      rec.AccessCount,
			LastAccess:       rec.LastAccess,
			Tier:             int(rec.Tier),
			CompressionRatio: rec.CompressionRatio,
		})
	}

	dto.Chunks = make([]chunkDTO, 0, len(s.Chunks))
	for id, rec := range s.Chunks {
		dto.Chunks = append(dto.Chunks, chunkDTO{
			ID:             id.String(),
			PlaintextLen:   rec.PlaintextLen,
			StoredLen:      rec.StoredLen,
			StoredChecksum: rec.StoredChecksum.String(),
			RefCount:       rec.RefCount,
			Replicas:       rec.Replicas,
		})
	}

	dto.FreeList = make([]extentDTO, len(s.FreeList))
	for i, e := range s.FreeList {
		dto.FreeList[i] = extentDTO{Offset: e.Offset, Length: e.Length}
	}

	return dto, nil
}

func (dto stateDTO) toState() (State, error) {
	out := State{
		Objects:   make(map[vaultid.ObjectID]objectindex.Record, len(dto.Objects)),
		Chunks:    make(map[store.ChunkID]store.ChunkRecord, len(dto.Chunks)),
		FreeList:  make([]alloc.Extent, len(dto.FreeList)),
		HighWater: dto.HighWater,
	}

	for _, o := range dto.Objects {
		id, err := vaultid.ParseObjectID(o.ID)
		if err != nil {
			return State{}, err
		}
		checksum, err := parseChecksum(o.Checksum)
		if err != nil {
			return State{}, err
		}
		chunkIDs := make([]store.ChunkID, len(o.ChunkIDs))
		for i, s := range o.ChunkIDs {
			cid, err := store.ParseChunkID(s)
			if err != nil {
				return State{}, err
			}
			chunkIDs[i] = cid
		}
		out.Objects[id] = objectindex.Record{
			ID:               id,
			Name:             o.Name,
			Owner:            o.Owner,
			Size:             o.Size,
			Checksum:         checksum,
			ChunkIDs:         chunkIDs,
			CreatedAt:        o.CreatedAt,
			ModifiedAt:       o.ModifiedAt,
			AccessCount:      o.AccessCount,
			LastAccess:       o.LastAccess,
			Tier:             objectindex.Tier(o.Tier),
			CompressionRatio: o.CompressionRatio,
		}
	}

	for _, c := range dto.Chunks {
		id, err := store.ParseChunkID(c.ID)
		if err != nil {
			return State{}, err
		}
		checksum, err := parseChecksum(c.StoredChecksum)
		if err != nil {
			return State{}, err
		}
		out.Chunks[id] = store.ChunkRecord{
			PlaintextLen:   c.PlaintextLen,
			StoredLen:      c.StoredLen,
			StoredChecksum: checksum,
			RefCount:       c.RefCount,
			Replicas:       append([]uint64(nil), c.Replicas...),
		}
	}

	for i, e := range dto.FreeList {
		out.FreeList[i] = alloc.Extent{Offset: e.Offset, Length: e.Length}
	}

	return out, nil
}
