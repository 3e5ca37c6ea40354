package metadata

import (
	"encoding/hex"
	"fmt"

	"vaultfs/internal/store"
)

func parseChecksum(s string) (store.Checksum, error) {
	if len(s) != 64 {
		return store.Checksum{}, fmt.Errorf("invalid checksum length: %d (want 64)", len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return store.Checksum{}, fmt.Errorf("invalid checksum: %w", err)
	}
	var out store.Checksum
	copy(out[:], decoded)
	return out, nil
}
