package sstable

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Primitive value codec. Numerics are fixed-width big-endian; text, blob,
// inet, varint and decimal are vint-length-prefixed. Dates are stored the
// Cassandra way, as an unsigned day count biased by 2^31 around the epoch.

const dateEpochBias = int64(1) << 31

func decodePrimitive(p []byte, k Kind) (Value, int, error) {
	switch k {
	case KindBoolean:
		if len(p) < 1 {
			return Null, 0, errTruncated
		}
		return Value{Kind: k, Bool: p[0] != 0}, 1, nil

	case KindTinyInt:
		if len(p) < 1 {
			return Null, 0, errTruncated
		}
		return Value{Kind: k, Int: int64(int8(p[0]))}, 1, nil

	case KindSmallInt:
		if len(p) < 2 {
			return Null, 0, errTruncated
		}
		return Value{Kind: k, Int: int64(int16(binary.BigEndian.Uint16(p)))}, 2, nil

	case KindInt:
		if len(p) < 4 {
			return Null, 0, errTruncated
		}
		return Value{Kind: k, Int: int64(int32(binary.BigEndian.Uint32(p)))}, 4, nil

	case KindBigInt, KindCounter, KindTimestamp, KindTime:
		// timestamps keep their raw millisecond count, even out-of-range ones
		if len(p) < 8 {
			return Null, 0, errTruncated
		}
		return Value{Kind: k, Int: int64(binary.BigEndian.Uint64(p))}, 8, nil

	case KindDate:
		if len(p) < 4 {
			return Null, 0, errTruncated
		}
		return Value{Kind: k, Int: int64(binary.BigEndian.Uint32(p)) - dateEpochBias}, 4, nil

	case KindFloat:
		if len(p) < 4 {
			return Null, 0, errTruncated
		}
		return Value{Kind: k, Float: float64(math.Float32frombits(binary.BigEndian.Uint32(p)))}, 4, nil

	case KindDouble:
		if len(p) < 8 {
			return Null, 0, errTruncated
		}
		return Value{Kind: k, Float: math.Float64frombits(binary.BigEndian.Uint64(p))}, 8, nil

	case KindUUID, KindTimeUUID:
		if len(p) < 16 {
			return Null, 0, errTruncated
		}
		id, err := uuid.FromBytes(p[:16])
		if err != nil {
			return Null, 0, err
		}
		return Value{Kind: k, UUID: id}, 16, nil

	case KindAscii, KindText:
		b, n, err := decodeBytes(p)
		if err != nil {
			return Null, 0, err
		}
		if k == KindAscii {
			for _, c := range b {
				if c >= 0x80 {
					return Null, 0, ErrInvalidEncoding
				}
			}
		} else if !utf8.Valid(b) {
			return Null, 0, ErrInvalidEncoding
		}
		return Value{Kind: k, Text: string(b)}, n, nil

	case KindBlob:
		b, n, err := decodeBytes(p)
		if err != nil {
			return Null, 0, err
		}
		return Value{Kind: k, Bytes: append([]byte(nil), b...)}, n, nil

	case KindInet:
		b, n, err := decodeBytes(p)
		if err != nil {
			return Null, 0, err
		}
		if len(b) != 4 && len(b) != 16 {
			return Null, 0, fmt.Errorf("sstable: inet address must be 4 or 16 bytes, found %d", len(b))
		}
		return Value{Kind: k, Bytes: append([]byte(nil), b...)}, n, nil

	case KindVarint:
		b, n, err := decodeBytes(p)
		if err != nil {
			return Null, 0, err
		}
		return Value{Kind: k, Big: bigFromTwosComplement(b)}, n, nil

	case KindDecimal:
		scale, n, err := DecodeVInt(p)
		if err != nil {
			return Null, 0, err
		}
		if scale < math.MinInt32 || scale > math.MaxInt32 {
			return Null, 0, fmt.Errorf("sstable: decimal scale %d out of range", scale)
		}
		b, m, err := decodeBytes(p[n:])
		if err != nil {
			return Null, 0, err
		}
		return Value{Kind: k, Big: bigFromTwosComplement(b), Scale: int32(scale)}, n + m, nil

	case KindDuration:
		months, n1, err := DecodeVInt(p)
		if err != nil {
			return Null, 0, err
		}
		days, n2, err := DecodeVInt(p[n1:])
		if err != nil {
			return Null, 0, err
		}
		nanos, n3, err := DecodeVInt(p[n1+n2:])
		if err != nil {
			return Null, 0, err
		}
		if months < math.MinInt32 || months > math.MaxInt32 || days < math.MinInt32 || days > math.MaxInt32 {
			return Null, 0, fmt.Errorf("sstable: duration months/days out of range")
		}
		return Value{Kind: k, Months: int32(months), Days: int32(days), Nanos: nanos}, n1 + n2 + n3, nil
	}

	return Null, 0, fmt.Errorf("sstable: cannot decode kind %s", k)
}

func appendPrimitive(dst []byte, v Value, k Kind) ([]byte, error) {
	switch k {
	case KindBoolean:
		if v.Bool {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil

	case KindTinyInt:
		return append(dst, byte(v.Int)), nil

	case KindSmallInt:
		return binary.BigEndian.AppendUint16(dst, uint16(v.Int)), nil

	case KindInt:
		return binary.BigEndian.AppendUint32(dst, uint32(v.Int)), nil

	case KindBigInt, KindCounter, KindTimestamp, KindTime:
		return binary.BigEndian.AppendUint64(dst, uint64(v.Int)), nil

	case KindDate:
		return binary.BigEndian.AppendUint32(dst, uint32(v.Int+dateEpochBias)), nil

	case KindFloat:
		return binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(v.Float))), nil

	case KindDouble:
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(v.Float)), nil

	case KindUUID, KindTimeUUID:
		return append(dst, v.UUID[:]...), nil

	case KindAscii, KindText:
		dst = AppendUVInt(dst, uint64(len(v.Text)))
		return append(dst, v.Text...), nil

	case KindBlob, KindInet:
		dst = AppendUVInt(dst, uint64(len(v.Bytes)))
		return append(dst, v.Bytes...), nil

	case KindVarint:
		b := appendTwosComplement(nil, v.Big)
		dst = AppendUVInt(dst, uint64(len(b)))
		return append(dst, b...), nil

	case KindDecimal:
		dst = AppendVInt(dst, int64(v.Scale))
		b := appendTwosComplement(nil, v.Big)
		dst = AppendUVInt(dst, uint64(len(b)))
		return append(dst, b...), nil

	case KindDuration:
		dst = AppendVInt(dst, int64(v.Months))
		dst = AppendVInt(dst, int64(v.Days))
		return AppendVInt(dst, v.Nanos), nil
	}

	return nil, fmt.Errorf("sstable: cannot encode kind %s", k)
}

// decodeBytes reads a uvint-length-prefixed byte run.
func decodeBytes(p []byte) ([]byte, int, error) {
	u, n, err := DecodeUVInt(p)
	if err != nil {
		return nil, 0, err
	}
	if u > uint64(len(p)-n) {
		return nil, 0, errTruncated
	}
	return p[n : n+int(u)], n + int(u), nil
}

var bigOne = big.NewInt(1)

// bigFromTwosComplement interprets b as a big-endian two's-complement
// signed magnitude. An empty run decodes to zero.
func bigFromTwosComplement(b []byte) *big.Int {
	z := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		z.Sub(z, new(big.Int).Lsh(bigOne, uint(len(b)*8)))
	}
	return z
}

// appendTwosComplement appends the minimal big-endian two's-complement
// form of z.
func appendTwosComplement(dst []byte, z *big.Int) []byte {
	if z == nil || z.Sign() == 0 {
		return append(dst, 0)
	}
	if z.Sign() > 0 {
		b := z.Bytes()
		if b[0]&0x80 != 0 {
			dst = append(dst, 0)
		}
		return append(dst, b...)
	}

	n := 1
	for {
		min := new(big.Int).Lsh(bigOne, uint(8*n-1))
		min.Neg(min)
		if z.Cmp(min) >= 0 {
			break
		}
		n++
	}
	val := new(big.Int).Add(z, new(big.Int).Lsh(bigOne, uint(8*n)))
	return append(dst, val.Bytes()...)
}
