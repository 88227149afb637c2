package utils

import (
	"encoding/binary"
	"hash"

	"github.com/twmb/murmur3"
)

func HashString(s string) uint64 {
	return HashBytes([]byte(s))
}

func HashBytes(bytes ...[]byte) uint64 {
	h := murmur3.New64()
	for _, b := range bytes {
		_, err := h.Write(b)
		if err != nil {
			panic(err)
		}
	}
	return h.Sum64()
}

// Hasher accumulates length-prefixed chunks, so ["ab", "c"] and ["a", "bc"] differ.
type Hasher struct {
	state hash.Hash64
}

func NewHasher() *Hasher {
	return &Hasher{state: murmur3.New64()}
}

func (h *Hasher) Add(chunk []byte) {
	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(chunk)))
	_, _ = h.state.Write(prefix[:])
	_, _ = h.state.Write(chunk)
}

func (h *Hasher) Sum64() uint64 {
	return h.state.Sum64()
}
