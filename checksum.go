package nbrly

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// checksumSize is the width of the trailing xxh3 checksum appended to
// every encoded record blob (record.go) — the hot-path checksum, grounded
// on the teacher's AlgXXHash3 default (hash.go), repurposed here from a
// label hash into a corruption-detecting blob checksum.
const checksumSize = 8

// appendChecksum computes the xxh3 checksum of buf[:n] and writes it,
// little-endian, into buf[n : n+checksumSize]. buf must have length
// n+checksumSize.
func appendChecksum(buf []byte, n int) {
	sum := xxh3.Hash(buf[:n])
	binary.LittleEndian.PutUint64(buf[n:], sum)
}

// verifyChecksum reports whether the trailing checksumSize bytes of blob
// match the xxh3 checksum of the bytes preceding them.
func verifyChecksum(blob []byte) bool {
	if len(blob) < checksumSize {
		return false
	}
	n := len(blob) - checksumSize
	want := binary.LittleEndian.Uint64(blob[n:])
	return xxh3.Hash(blob[:n]) == want
}

// walChecksumSize is the width of the blake2b-based checksum on WAL
// frames — the rarer, larger commit path, mirroring the teacher's
// xxh3-for-hot-path / blake2b-for-selectable-path asymmetry (hash.go's
// AlgBlake2b option) by fixing blake2b specifically for WAL frames rather
// than leaving it a runtime choice.
const walChecksumSize = 8

// walChecksum returns an 8-byte blake2b-based checksum of data, truncated
// from the 256-bit digest.
func walChecksum(data []byte) uint64 {
	sum := blake2b.Sum256(data)
	return binary.LittleEndian.Uint64(sum[:8])
}
