package device

import (
	"fmt"
	"os"
	"sync"
)

// FileDevice is a Device backed by a fixed-size regular file. The file is
// created (and zero-extended) to size if it doesn't already exist or is
// smaller than size; an existing larger file is used as-is with Size()
// reporting the configured size, not the file's actual size.
type FileDevice struct {
	mu   sync.RWMutex
	f    *os.File
	size uint64
}

var _ Device = (*FileDevice)(nil)

// OpenFileDevice opens or creates path as a FileDevice of exactly size bytes.
func OpenFileDevice(path string, size uint64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open device file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat device file: %w", err)
	}
	if uint64(info.Size()) < size {
		if err := f.Truncate(int64(size)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("extend device file: %w", err)
		}
	}
	return &FileDevice{f: f, size: size}, nil
}

func (d *FileDevice) Size() uint64 {
	return d.size
}

func (d *FileDevice) ReadAt(off, length uint64) ([]byte, error) {
	if err := checkRange("file device read", off, length, d.size); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, err := d.f.ReadAt(buf, int64(off)); err != nil {
		return nil, fmt.Errorf("file device read: %w", err)
	}
	return buf, nil
}

func (d *FileDevice) WriteAt(off uint64, data []byte) error {
	if err := checkRange("file device write", off, uint64(len(data)), d.size); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.WriteAt(data, int64(off)); err != nil {
		return fmt.Errorf("file device write: %w", err)
	}
	return nil
}

// Sync flushes buffered writes to stable storage.
func (d *FileDevice) Sync() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.f.Sync()
}

// Close releases the underlying file handle. The device must not be used
// after Close.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
