package metadata

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"vaultfs/internal/format"
)

const sectionVersion = 1

// section layout within its fixed-size slice:
//
//	[4]  header (signature/type/version/flags)
//	[8]  modification timestamp, unix milliseconds, big-endian
//	[4]  body length, big-endian
//	[bodyLen] JSON-encoded stateDTO
//	[32] SHA-256 checksum over everything preceding this field
//	[...] zero padding to fill the section
const (
	sectionHeaderLen   = format.HeaderSize + 8 + 4
	sectionChecksumLen = sha256.Size
)

var errSectionTooSmall = fmt.Errorf("metadata: section smaller than minimum framing overhead")

// encodeSection serializes state into a section-sized buffer. Returns an
// error if the serialized body doesn't fit.
func encodeSection(state State, modTime time.Time, sectionSize int) ([]byte, error) {
	if sectionSize < sectionHeaderLen+sectionChecksumLen {
		return nil, errSectionTooSmall
	}

	dto, err := state.toDTO()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(dto)
	if err != nil {
		return nil, fmt.Errorf("encode metadata section: %w", err)
	}
	if sectionHeaderLen+len(body)+sectionChecksumLen > sectionSize {
		return nil, fmt.Errorf("metadata: state too large for section size %d (need %d)", sectionSize, sectionHeaderLen+len(body)+sectionChecksumLen)
	}

	buf := make([]byte, sectionSize)
	hdr := format.Header{Type: format.TypeMetadataSection, Version: sectionVersion}
	n := hdr.EncodeInto(buf)
	binary.BigEndian.PutUint64(buf[n:n+8], uint64(modTime.UnixMilli()))
	n += 8
	binary.BigEndian.PutUint32(buf[n:n+4], uint32(len(body)))
	n += 4
	n += copy(buf[n:], body)

	checksum := sha256.Sum256(buf[:n])
	copy(buf[n:n+sectionChecksumLen], checksum[:])
	return buf, nil
}

// decodedSection is a section that parsed and verified successfully.
type decodedSection struct {
	modTime time.Time
	state   State
}

// decodeSection validates and parses a raw section buffer. allZero reports
// whether the entire buffer is zero bytes, used by the caller to
// distinguish a freshly-initialized device from genuine corruption.
func decodeSection(raw []byte) (decodedSection, bool, error) {
	if isAllZero(raw) {
		return decodedSection{}, true, fmt.Errorf("metadata: section is all-zero")
	}

	if len(raw) < sectionHeaderLen+sectionChecksumLen {
		return decodedSection{}, false, errSectionTooSmall
	}

	if _, err := format.DecodeAndValidate(raw, format.TypeMetadataSection, sectionVersion); err != nil {
		return decodedSection{}, false, err
	}

	n := format.HeaderSize
	modMillis := binary.BigEndian.Uint64(raw[n : n+8])
	n += 8
	bodyLen := binary.BigEndian.Uint32(raw[n : n+4])
	n += 4

	if n+int(bodyLen)+sectionChecksumLen > len(raw) {
		return decodedSection{}, false, fmt.Errorf("metadata: section body length %d out of range", bodyLen)
	}
	body := raw[n : n+int(bodyLen)]
	n += int(bodyLen)

	want := raw[n : n+sectionChecksumLen]
	got := sha256.Sum256(raw[:n])
	if !bytes.Equal(got[:], want) {
		return decodedSection{}, false, fmt.Errorf("metadata: section checksum mismatch")
	}

	var dto stateDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return decodedSection{}, false, fmt.Errorf("metadata: section body corrupt: %w", err)
	}
	state, err := dto.toState()
	if err != nil {
		return decodedSection{}, false, err
	}

	return decodedSection{
		modTime: time.UnixMilli(int64(modMillis)),
		state:   state,
	}, false, nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
