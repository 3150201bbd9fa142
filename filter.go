package sstable

import (
	"encoding/binary"
	"math"

	"github.com/spaolacci/murmur3"
)

// Filter is the partition-key bloom filter stored in Filter.db. A negative
// answer is definitive; a positive one still requires an index probe. The
// reader evaluates membership only and never revalidates the writer's
// sizing parameters.
//
// Layout: bitCount (u64), hashCount (u32), then ceil(bitCount/64) u64
// words, all big-endian. Probes use the 128-bit murmur3 hash of the raw
// partition key: g_i = h1 + i*h2 mod bitCount.
type Filter struct {
	bitCount  uint64
	hashCount uint32
	words     []uint64
}

// NewFilter sizes an empty filter for the expected number of partitions
// and target false-positive rate. It exists for tooling that assembles
// component files; reading never constructs one.
func NewFilter(expectedKeys int, falsePositiveRate float64) *Filter {
	if expectedKeys < 1 {
		expectedKeys = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	// m = -n*ln(p)/ln(2)^2, k = m/n*ln(2)
	bitCount := uint64(math.Ceil(-float64(expectedKeys) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	if bitCount < 64 {
		bitCount = 64
	}
	hashCount := uint32(math.Round(float64(bitCount) / float64(expectedKeys) * math.Ln2))
	if hashCount < 1 {
		hashCount = 1
	}

	return &Filter{
		bitCount:  bitCount,
		hashCount: hashCount,
		words:     make([]uint64, (bitCount+63)/64),
	}
}

// ParseFilter parses Filter.db.
func ParseFilter(p []byte) (*Filter, error) {
	if len(p) < 12 {
		return nil, &FormatError{Component: ComponentFilter, Reason: "truncated header"}
	}
	f := &Filter{
		bitCount:  binary.BigEndian.Uint64(p),
		hashCount: binary.BigEndian.Uint32(p[8:]),
	}
	if f.bitCount == 0 || f.hashCount == 0 {
		return nil, &FormatError{Component: ComponentFilter, Reason: "zero bit or hash count"}
	}

	words := int((f.bitCount + 63) / 64)
	if len(p) != 12+8*words {
		return nil, &FormatError{Component: ComponentFilter, Offset: 12, Reason: "bit words do not match declared bit count"}
	}
	f.words = make([]uint64, words)
	for i := range f.words {
		f.words[i] = binary.BigEndian.Uint64(p[12+8*i:])
	}
	return f, nil
}

// MarshalBinary is the inverse of ParseFilter.
func (f *Filter) MarshalBinary() ([]byte, error) {
	dst := binary.BigEndian.AppendUint64(nil, f.bitCount)
	dst = binary.BigEndian.AppendUint32(dst, f.hashCount)
	for _, w := range f.words {
		dst = binary.BigEndian.AppendUint64(dst, w)
	}
	return dst, nil
}

// Add records a raw partition key.
func (f *Filter) Add(key []byte) {
	h1, h2 := murmur3.Sum128(key)
	for i := uint64(0); i < uint64(f.hashCount); i++ {
		bit := (h1 + i*h2) % f.bitCount
		f.words[bit/64] |= 1 << (bit % 64)
	}
}

// MightContain reports whether the raw partition key may be present.
// False means definitely absent.
func (f *Filter) MightContain(key []byte) bool {
	h1, h2 := murmur3.Sum128(key)
	for i := uint64(0); i < uint64(f.hashCount); i++ {
		bit := (h1 + i*h2) % f.bitCount
		if f.words[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// BitCount returns the size of the filter in bits.
func (f *Filter) BitCount() uint64 { return f.bitCount }

// HashCount returns the number of probes per key.
func (f *Filter) HashCount() uint32 { return f.hashCount }
