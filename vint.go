package sstable

import "math/bits"

// Cassandra's variable-length integer encoding. The count of leading one
// bits in the first byte equals the number of extra bytes (0-8); the
// remaining bits of the first byte, concatenated with the extra bytes, hold
// the unsigned value. A first byte of 0xFF is followed by 8 bytes carrying
// the full 64 bits. Signed values are zigzag-mapped onto unsigned ones.

// MaxVIntLen is the maximum encoded size of a vint.
const MaxVIntLen = 9

// DecodeUVInt decodes an unsigned vint from the head of p and returns the
// value and the number of bytes consumed. Over-long (non-canonical)
// encodings are accepted. Truncated input fails with ErrMalformedVInt.
func DecodeUVInt(p []byte) (uint64, int, error) {
	if len(p) == 0 {
		return 0, 0, ErrMalformedVInt
	}

	first := p[0]
	extra := bits.LeadingZeros8(^first)
	if extra == 0 {
		return uint64(first), 1, nil
	}
	if len(p) < extra+1 {
		return 0, 0, ErrMalformedVInt
	}

	var v uint64
	if extra < 8 {
		v = uint64(first & (0xFF >> uint(extra+1)))
	}
	for _, b := range p[1 : extra+1] {
		v = v<<8 | uint64(b)
	}
	return v, extra + 1, nil
}

// DecodeVInt decodes a signed vint from the head of p.
func DecodeVInt(p []byte) (int64, int, error) {
	u, n, err := DecodeUVInt(p)
	if err != nil {
		return 0, 0, err
	}
	return unzigzag(u), n, nil
}

// AppendUVInt appends the canonical, minimal-length encoding of v to dst.
func AppendUVInt(dst []byte, v uint64) []byte {
	n := uvintLen(v)
	if n == 1 {
		return append(dst, byte(v))
	}

	extra := n - 1
	if extra == 8 {
		dst = append(dst, 0xFF)
	} else {
		dst = append(dst, byte(0xFF<<uint(8-extra))|byte(v>>uint(8*extra)))
	}
	for i := extra - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>uint(8*i)))
	}
	return dst
}

// AppendVInt appends the canonical encoding of the signed value v to dst.
func AppendVInt(dst []byte, v int64) []byte {
	return AppendUVInt(dst, zigzag(v))
}

// UVIntLen reports the canonical encoded size of v.
func UVIntLen(v uint64) int { return uvintLen(v) }

// VIntLen reports the canonical encoded size of the signed value v.
func VIntLen(v int64) int { return uvintLen(zigzag(v)) }

// An n-byte encoding carries 7n value bits for n < 9, a 9-byte one all 64.
func uvintLen(v uint64) int {
	n := 1
	for n < 9 && v >= 1<<(7*uint(n)) {
		n++
	}
	return n
}

func zigzag(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
