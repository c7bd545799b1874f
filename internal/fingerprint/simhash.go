package fingerprint

import (
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math/bits"
	"strings"
)

// SimHashBits is the fuzzy hash width.
const SimHashBits = 128

// SimHash is a 128-bit fuzzy similarity hash over a document's token
// distribution: near-identical token multisets produce hashes within a few
// bits of each other, which is what makes fuzzy duplicate matching work.
type SimHash [2]uint64

// ZeroSimHash is the defined sentinel for empty or unhashable text.
var ZeroSimHash SimHash

// ComputeSimHash builds the hash by weighted bit-voting: each token is hashed
// to 128 bits, every set bit votes +1 and every clear bit votes -1 on its
// position, and the final bit is 1 iff its tally is positive. Empty text maps
// to the all-zero sentinel, never an error.
func ComputeSimHash(text string) SimHash {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(tokens) == 0 {
		return ZeroSimHash
	}

	var votes [SimHashBits]int
	for _, tok := range tokens {
		h := fnv.New128a()
		h.Write([]byte(tok))
		sum := h.Sum(nil) // 16 bytes

		for i := 0; i < SimHashBits; i++ {
			if sum[i/8]&(1<<(i%8)) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}

	var out SimHash
	for i := 0; i < SimHashBits; i++ {
		if votes[i] > 0 {
			out[i/64] |= 1 << (i % 64)
		}
	}
	return out
}

// Hamming returns the number of differing bits between two hashes.
func (h SimHash) Hamming(other SimHash) int {
	return bits.OnesCount64(h[0]^other[0]) + bits.OnesCount64(h[1]^other[1])
}

// Similarity maps the Hamming distance to [0,1], where 1 means identical.
func (h SimHash) Similarity(other SimHash) float64 {
	return 1.0 - float64(h.Hamming(other))/float64(SimHashBits)
}

// Hex renders the hash as a fixed-width 32-character hex string.
func (h SimHash) Hex() string {
	buf := make([]byte, 16)
	for i := 0; i < 8; i++ {
		buf[i] = byte(h[0] >> (8 * i))
		buf[8+i] = byte(h[1] >> (8 * i))
	}
	return hex.EncodeToString(buf)
}

// ParseSimHash is the inverse of Hex.
func ParseSimHash(s string) (SimHash, error) {
	buf, err := hex.DecodeString(s)
	if err != nil || len(buf) != 16 {
		return ZeroSimHash, fmt.Errorf("invalid simhash %q", s)
	}
	var h SimHash
	for i := 0; i < 8; i++ {
		h[0] |= uint64(buf[i]) << (8 * i)
		h[1] |= uint64(buf[8+i]) << (8 * i)
	}
	return h, nil
}
