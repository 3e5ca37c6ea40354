package device

import "sync"

// MemoryDevice is an in-memory Device backed by a single byte slice. It is
// primarily used in tests, where it also exposes Corrupt for fault-injection
// scenarios (spec §8's fault-tolerance tests flip or destroy specific byte
// ranges to simulate bit rot).
type MemoryDevice struct {
	mu   sync.RWMutex
	data []byte
}

var _ Device = (*MemoryDevice)(nil)

// NewMemoryDevice allocates a zero-filled in-memory device of the given size.
func NewMemoryDevice(size uint64) *MemoryDevice {
	return &MemoryDevice{data: make([]byte, size)}
}

func (d *MemoryDevice) Size() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return uint64(len(d.data))
}

func (d *MemoryDevice) ReadAt(off, length uint64) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := checkRange("memory device read", off, length, uint64(len(d.data))); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, d.data[off:off+length])
	return out, nil
}

func (d *MemoryDevice) WriteAt(off uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkRange("memory device write", off, uint64(len(data)), uint64(len(d.data))); err != nil {
		return err
	}
	copy(d.data[off:], data)
	return nil
}

// Corrupt overwrites [off, off+len(pattern)) directly, bypassing normal
// WriteAt semantics. Used by tests to simulate random byte corruption on
// the underlying medium.
func (d *MemoryDevice) Corrupt(off uint64, pattern []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkRange("memory device corrupt", off, uint64(len(pattern)), uint64(len(d.data))); err != nil {
		return err
	}
	copy(d.data[off:], pattern)
	return nil
}
