// Package alloc implements the space allocator (spec component C2): a
// first-fit free-extent allocator over the data region of a Device, with
// boundary coalescing and a high-water-mark fallback.
//
// Allocator itself holds no lock; the engine's single-writer invariant
// (spec §5) is responsible for serializing Allocate/Free calls. This
// mirrors the teacher's chunk/file.Manager, which guards all of its mutable
// state with one mutex owned by the caller's call sites rather than by the
// allocator's own internals.
package alloc

import (
	"errors"
	"fmt"
	"slices"
)

// ErrOutOfSpace is returned when the data region cannot satisfy a request.
var ErrOutOfSpace = errors.New("alloc: out of space")

// Extent is a (offset, length) byte range within the data region.
type Extent struct {
	Offset uint64
	Length uint64
}

// End returns Offset+Length.
func (e Extent) End() uint64 { return e.Offset + e.Length }

// Allocator tracks free extents inside [base, base+dataSize) of a device
// and serves block-aligned allocations.
//
// Block alignment: every allocation size is rounded up to a multiple of
// blockSize (default 512) before being served, and the returned offset is
// always block-aligned relative to base.
type Allocator struct {
	base      uint64 // start of the data region (end of the metadata region)
	dataSize  uint64 // size of the data region
	blockSize uint64

	free      []Extent // free extents, kept sorted by offset (first-fit scan order)
	highWater uint64   // offset of the first never-yet-allocated byte, relative to base
}

// New creates an Allocator over [base, base+dataSize) with the given block
// size. The allocator starts with the entire data region unallocated, ready
// to be served from the high-water path.
func New(base, dataSize, blockSize uint64) *Allocator {
	if blockSize == 0 {
		blockSize = 512
	}
	return &Allocator{
		base:      base,
		dataSize:  dataSize,
		blockSize: blockSize,
	}
}

// Restore rebuilds allocator state from a persisted free list and the set of
// extents already in use. The high-water mark is recomputed as
// max(extent.End()) over the live chunk extents and the free extents
// together (a free extent left at the top by a delete still lies below it),
// rounded up to the block size; it is never taken from the free list alone.
func (a *Allocator) Restore(free []Extent, liveExtents []Extent) {
	a.free = append([]Extent(nil), free...)
	hw := uint64(0)
	for _, e := range liveExtents {
		rel := e.End() - a.base
		if rel > hw {
			hw = rel
		}
	}
	for _, e := range free {
		rel := e.End() - a.base
		if rel > hw {
			hw = rel
		}
	}
	a.highWater = a.roundUp(hw)
}

func (a *Allocator) roundUp(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	rem := size % a.blockSize
	if rem == 0 {
		return size
	}
	return size + (a.blockSize - rem)
}

// Allocate reserves size bytes and returns the absolute device offset of the
// reservation. size is rounded up to the block size before being served.
//
// Algorithm: first-fit scan of the free list, which Free keeps sorted by
// offset, so the lowest-offset extent that fits is used (not the earliest
// freed one). On a fit,
// the extent is split (or removed if it becomes zero-sized) and the low
// offset returned. On a miss, the allocation is served from the high-water
// mark, extending the logical used region. If that would exceed the data
// region, ErrOutOfSpace is returned.
func (a *Allocator) Allocate(size uint64) (uint64, error) {
	need := a.roundUp(size)
	if need == 0 {
		return a.base + a.highWater, nil
	}

	for i, ext := range a.free {
		if ext.Length < need {
			continue
		}
		offset := ext.Offset
		if ext.Length == need {
			a.free = slices.Delete(a.free, i, i+1)
		} else {
			a.free[i] = Extent{Offset: ext.Offset + need, Length: ext.Length - need}
		}
		return offset, nil
	}

	if a.highWater+need > a.dataSize {
		return 0, fmt.Errorf("%w: need %d bytes, %d remaining", ErrOutOfSpace, need, a.dataSize-a.highWater)
	}
	offset := a.base + a.highWater
	a.highWater += need
	return offset, nil
}

// Free returns [offset, offset+size) to the free list, rounding size up to
// the block size exactly as Allocate did when the extent was reserved, then
// coalesces it with any free extent sharing a boundary. A size of zero is a
// no-op. Coalescing is transitive: merging can itself create a new boundary
// match, so the merge step repeats until no more merges apply.
func (a *Allocator) Free(offset, size uint64) {
	need := a.roundUp(size)
	if need == 0 {
		return
	}
	a.free = append(a.free, Extent{Offset: offset, Length: need})
	a.coalesce()
}

// coalesce merges any two free extents that share a boundary, repeating
// until a full pass produces no further merges.
func (a *Allocator) coalesce() {
	for {
		merged := false
		slices.SortFunc(a.free, func(x, y Extent) int {
			switch {
			case x.Offset < y.Offset:
				return -1
			case x.Offset > y.Offset:
				return 1
			default:
				return 0
			}
		})
		out := a.free[:0:0]
		for i := 0; i < len(a.free); i++ {
			cur := a.free[i]
			for i+1 < len(a.free) && a.free[i+1].Offset == cur.End() {
				cur.Length += a.free[i+1].Length
				i++
				merged = true
			}
			out = append(out, cur)
		}
		a.free = out
		if !merged {
			return
		}
	}
}

// FreeList returns a snapshot copy of the current free extents, sorted by
// offset. Used by metadata persistence and by Defragment's reporting.
func (a *Allocator) FreeList() []Extent {
	out := append([]Extent(nil), a.free...)
	slices.SortFunc(out, func(x, y Extent) int {
		switch {
		case x.Offset < y.Offset:
			return -1
		case x.Offset > y.Offset:
			return 1
		default:
			return 0
		}
	})
	return out
}

// HighWater returns the current high-water mark, relative to base.
func (a *Allocator) HighWater() uint64 {
	return a.highWater
}

// Defragment coalesces the free list (a no-op if it's already fully
// coalesced, which it always is immediately after Free) and reports the
// number of free extents before and after this call. Since Free already coalesces
// eagerly, a standalone Defragment pass only has work to do if extents were
// inserted via Restore without going through Free.
func (a *Allocator) Defragment() (extentsBefore, extentsAfter int) {
	extentsBefore = len(a.free)
	a.coalesce()
	extentsAfter = len(a.free)
	return extentsBefore, extentsAfter
}
