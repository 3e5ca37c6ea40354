// Package metadata implements the metadata region (spec component C5): a
// fixed-size device prefix split into S equal self-checksummed sections,
// each an independent serialization of the engine's object index, chunk
// table, and free list. Load reconciles by newest valid modification
// timestamp; save rewrites every section with identical bytes.
package metadata

import (
	"fmt"
	"time"

	"vaultfs/internal/device"
	"vaultfs/internal/vaulterrors"
)

// DefaultRegionSize is the default metadata region size (64 KiB).
const DefaultRegionSize = 64 * 1024

// DefaultSectionCount is the default number of sections, S.
const DefaultSectionCount = 3

// Region manages the metadata prefix of a device.
type Region struct {
	size     uint64
	sections int

	corrupted bool
	backups   []decodedSection // non-authoritative but valid sections, for inspection
}

// NewRegion configures a Region of the given total size split into the
// given number of sections.
func NewRegion(size uint64, sections int) *Region {
	if sections < 1 {
		sections = DefaultSectionCount
	}
	return &Region{size: size, sections: sections}
}

// Size returns the region's total byte size.
func (r *Region) Size() uint64 { return r.size }

// Corrupted reports whether Load found no valid section on a non-empty
// region. Once true, it remains true until the engine is reopened after
// administrative recovery.
func (r *Region) Corrupted() bool { return r.corrupted }

func (r *Region) sectionSize() uint64 {
	return r.size / uint64(r.sections)
}

// Load reads the entire metadata prefix in a single call and splits it into
// sections in memory (spec §9 mandates single-read-then-split over
// per-section reads, for load atomicity). It returns the authoritative
// state: the valid section with the greatest modification timestamp.
//
// If no section validates and the region is all-zero, Load initializes and
// immediately persists an empty state. If no section validates and the
// region is non-empty, Load returns ErrMetadataCorrupted and the region
// enters the terminal Corrupted state.
func (r *Region) Load(dev device.Device, now func() time.Time) (State, error) {
	raw, err := dev.ReadAt(0, r.size)
	if err != nil {
		return State{}, fmt.Errorf("%w: read metadata region: %v", vaulterrors.ErrDeviceError, err)
	}

	secSize := r.sectionSize()
	var valid []decodedSection
	allZero := true
	for i := 0; i < r.sections; i++ {
		start := uint64(i) * secSize
		raw := raw[start : start+secSize]
		decoded, sectionAllZero, err := decodeSection(raw)
		if !sectionAllZero {
			allZero = false
		}
		if err != nil {
			continue
		}
		valid = append(valid, decoded)
	}

	if len(valid) == 0 {
		if allZero {
			return r.initializeEmpty(dev, now)
		}
		r.corrupted = true
		return State{}, vaulterrors.ErrMetadataCorrupted
	}

	best := 0
	for i := 1; i < len(valid); i++ {
		if valid[i].modTime.After(valid[best].modTime) {
			best = i
		}
	}
	r.backups = nil
	for i, s := range valid {
		if i != best {
			r.backups = append(r.backups, s)
		}
	}
	return valid[best].state, nil
}

func (r *Region) initializeEmpty(dev device.Device, now func() time.Time) (State, error) {
	state := State{}
	if err := r.Save(dev, state, now()); err != nil {
		return State{}, err
	}
	return state, nil
}

// Save bumps every section's modification timestamp to now, re-encodes
// state into each, and writes them sequentially. There is no atomic
// cross-section barrier: a crash mid-save can leave older sections intact,
// which is why Load always picks the newest valid section rather than
// assuming all sections agree.
func (r *Region) Save(dev device.Device, state State, now time.Time) error {
	secSize := r.sectionSize()
	buf, err := encodeSection(state, now, int(secSize))
	if err != nil {
		return err
	}
	for i := 0; i < r.sections; i++ {
		off := uint64(i) * secSize
		if err := dev.WriteAt(off, buf); err != nil {
			return fmt.Errorf("%w: write metadata section %d: %v", vaulterrors.ErrDeviceError, i, err)
		}
	}
	return nil
}

// Backups returns the valid-but-superseded sections found by the most
// recent Load, for administrative inspection.
func (r *Region) Backups() []State {
	out := make([]State, len(r.backups))
	for i, b := range r.backups {
		out[i] = b.state
	}
	return out
}
