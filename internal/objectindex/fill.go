package objectindex

import "encoding/binary"

// FillKind selects how a graceful-degradation read reconstructs bytes for
// an unrecoverable chunk.
type FillKind int

const (
	// FillZeros writes a zero-filled buffer for the missing chunk.
	FillZeros FillKind = iota
	// FillPattern writes a repeating 32-bit pattern.
	FillPattern
	// FillSkip writes nothing; the corruption report widens instead.
	FillSkip
)

// Fill selects a FillKind and, for FillPattern, the 32-bit pattern value.
type Fill struct {
	Kind    FillKind
	Pattern uint32
}

// buffer returns the fill bytes for a chunk of length n. FillSkip returns a
// nil, zero-length buffer.
func (f Fill) buffer(n int) []byte {
	switch f.Kind {
	case FillSkip:
		return nil
	case FillPattern:
		buf := make([]byte, n)
		var p [4]byte
		binary.BigEndian.PutUint32(p[:], f.Pattern)
		for i := range buf {
			buf[i] = p[i%4]
		}
		return buf
	default: // FillZeros
		return make([]byte, n)
	}
}
