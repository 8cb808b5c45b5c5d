package core

import (
	"crypto/sha256"
	"encoding/binary"
)

// DeriveSeed mixes a base seed with naming parts into an independent stream seed.
// The result depends only on its arguments, so streams can be created in any
// order or from any goroutine.
func DeriveSeed(base int64, parts ...string) int64 {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(base))
	h.Write(buf[:])
	for _, p := range parts {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(p)))
		h.Write(buf[:])
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	return int64(binary.LittleEndian.Uint64(sum[:8]) &^ (1 << 63))
}
