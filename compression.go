package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm names as written into CompressionInfo.db.
const (
	AlgorithmLZ4     = "LZ4Compressor"
	AlgorithmSnappy  = "SnappyCompressor"
	AlgorithmDeflate = "DeflateCompressor"
	AlgorithmZstd    = "ZstdCompressor"
)

// castagnoli is the chunk checksum polynomial.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Codec compresses and decompresses individual Data.db chunks.
type Codec interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte, dstLen int) ([]byte, error)
}

// CodecFor returns the chunk codec for an algorithm name from
// CompressionInfo.db, or an UnsupportedCompressionError.
func CodecFor(algorithm string) (Codec, error) {
	switch algorithm {
	case AlgorithmLZ4:
		return lz4Codec{}, nil
	case AlgorithmSnappy:
		return snappyCodec{}, nil
	case AlgorithmDeflate:
		return deflateCodec{}, nil
	case AlgorithmZstd:
		return newZstdCodec()
	}
	return nil, &UnsupportedCompressionError{Algorithm: algorithm}
}

type lz4Codec struct{}

func (lz4Codec) Name() string { return AlgorithmLZ4 }

func (lz4Codec) Compress(src []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, buf, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 { // incompressible, emit a literal-only block
		return appendLZ4Literals(nil, src), nil
	}
	return buf[:n], nil
}

func (lz4Codec) Decompress(src []byte, dstLen int) ([]byte, error) {
	dst := make([]byte, dstLen)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// appendLZ4Literals emits a single literal-only LZ4 sequence.
func appendLZ4Literals(dst, src []byte) []byte {
	n := len(src)
	if n < 15 {
		dst = append(dst, byte(n)<<4)
	} else {
		dst = append(dst, 0xF0)
		for rest := n - 15; ; rest -= 255 {
			if rest < 255 {
				dst = append(dst, byte(rest))
				break
			}
			dst = append(dst, 255)
		}
	}
	return append(dst, src...)
}

type snappyCodec struct{}

func (snappyCodec) Name() string { return AlgorithmSnappy }

func (snappyCodec) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (snappyCodec) Decompress(src []byte, dstLen int) ([]byte, error) {
	return snappy.Decode(make([]byte, 0, dstLen), src)
}

type deflateCodec struct{}

func (deflateCodec) Name() string { return AlgorithmDeflate }

func (deflateCodec) Compress(src []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w, err := flate.NewWriter(buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (deflateCodec) Decompress(src []byte, dstLen int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()

	dst := make([]byte, 0, dstLen)
	buf := bytes.NewBuffer(dst)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (Codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Name() string { return AlgorithmZstd }

func (c *zstdCodec) Compress(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, nil), nil
}

func (c *zstdCodec) Decompress(src []byte, dstLen int) ([]byte, error) {
	return c.dec.DecodeAll(src, make([]byte, 0, dstLen))
}

// --------------------------------------------------------------------

// CompressionInfo is the parsed chunk table of a compressed Data.db.
// Chunk offsets are absolute Data.db file positions; each chunk is stored
// as the compressed bytes followed by a 4-byte CRC32-C of those bytes.
type CompressionInfo struct {
	Algorithm    string
	ChunkLength  uint32
	DataLength   uint64
	ChunkOffsets []uint64
}

// ParseCompressionInfo parses the binary layout of CompressionInfo.db:
// a 2-byte algorithm name length and name (padded to 4 bytes), the chunk
// length (u32), total uncompressed data length (u64), chunk count (u32)
// and one u64 file offset per chunk. All integers are big-endian.
func ParseCompressionInfo(p []byte) (*CompressionInfo, error) {
	fail := func(off int, reason string) (*CompressionInfo, error) {
		return nil, &FormatError{Component: ComponentCompressionInfo, Offset: int64(off), Reason: reason}
	}

	if len(p) < 2 {
		return fail(0, "truncated algorithm name length")
	}
	nameLen := int(binary.BigEndian.Uint16(p))
	if nameLen == 0 || nameLen > 256 {
		return fail(0, fmt.Sprintf("implausible algorithm name length %d", nameLen))
	}
	pos := 2
	if len(p) < pos+nameLen {
		return fail(pos, "truncated algorithm name")
	}
	name := string(p[pos : pos+nameLen])
	pos += nameLen
	if pad := (4 - pos%4) % 4; pad > 0 {
		pos += pad
	}

	if len(p) < pos+16 {
		return fail(pos, "truncated chunk table header")
	}
	ci := &CompressionInfo{
		Algorithm:   name,
		ChunkLength: binary.BigEndian.Uint32(p[pos:]),
		DataLength:  binary.BigEndian.Uint64(p[pos+4:]),
	}
	count := int(binary.BigEndian.Uint32(p[pos+12:]))
	pos += 16

	if ci.ChunkLength == 0 {
		return fail(pos, "zero chunk length")
	}
	if len(p) < pos+8*count {
		return fail(pos, fmt.Sprintf("truncated chunk offsets: %d declared", count))
	}
	ci.ChunkOffsets = make([]uint64, count)
	for i := range ci.ChunkOffsets {
		ci.ChunkOffsets[i] = binary.BigEndian.Uint64(p[pos+8*i:])
		if i > 0 && ci.ChunkOffsets[i] <= ci.ChunkOffsets[i-1] {
			return fail(pos+8*i, "chunk offsets not strictly ascending")
		}
	}

	want := int(uint64(ci.ChunkLength)-1+ci.DataLength) / int(ci.ChunkLength)
	if ci.DataLength > 0 && count != want {
		return fail(pos, fmt.Sprintf("chunk count %d does not cover data length %d", count, ci.DataLength))
	}
	return ci, nil
}

// MarshalBinary is the inverse of ParseCompressionInfo.
func (ci *CompressionInfo) MarshalBinary() ([]byte, error) {
	if len(ci.Algorithm) > 256 {
		return nil, fmt.Errorf("sstable: algorithm name too long")
	}
	dst := binary.BigEndian.AppendUint16(nil, uint16(len(ci.Algorithm)))
	dst = append(dst, ci.Algorithm...)
	for len(dst)%4 != 0 {
		dst = append(dst, 0)
	}
	dst = binary.BigEndian.AppendUint32(dst, ci.ChunkLength)
	dst = binary.BigEndian.AppendUint64(dst, ci.DataLength)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(ci.ChunkOffsets)))
	for _, off := range ci.ChunkOffsets {
		dst = binary.BigEndian.AppendUint64(dst, off)
	}
	return dst, nil
}

func (ci *CompressionInfo) chunkForOffset(off int64) int {
	return int(off / int64(ci.ChunkLength))
}

// chunkUncompressedLen is ChunkLength for every chunk but the last.
func (ci *CompressionInfo) chunkUncompressedLen(i int) int {
	if i == len(ci.ChunkOffsets)-1 {
		if rem := ci.DataLength % uint64(ci.ChunkLength); rem != 0 {
			return int(rem)
		}
	}
	return int(ci.ChunkLength)
}

// --------------------------------------------------------------------

// dataReader serves ranges of Data.db in uncompressed (logical) space.
// Each iterator owns its own instance so that chunk caches are never
// shared across goroutines.
type dataReader interface {
	// ReadRange returns n logical bytes starting at off. Short reads only
	// happen at end of data.
	ReadRange(off int64, n int) ([]byte, error)
	DataLength() int64
}

// rawReader is the identity passthrough for uncompressed SSTables.
type rawReader struct {
	r    io.ReaderAt
	base int64 // file offset of logical position 0
	size int64 // logical data length
}

func (rr *rawReader) DataLength() int64 { return rr.size }

func (rr *rawReader) ReadRange(off int64, n int) ([]byte, error) {
	if off < 0 || off > rr.size {
		return nil, fmt.Errorf("sstable: read offset %d out of range", off)
	}
	if max := rr.size - off; int64(n) > max {
		n = int(max)
	}
	buf := make([]byte, n)
	if _, err := rr.r.ReadAt(buf, rr.base+off); err != nil {
		return nil, err
	}
	return buf, nil
}

// chunkedReader translates logical offsets into chunk reads, decompressing
// and checksum-verifying only the chunks that cover a requested range. The
// most recent chunk is cached.
type chunkedReader struct {
	r     io.ReaderAt
	size  int64 // compressed Data.db file size
	info  *CompressionInfo
	codec Codec

	cachedIdx int
	cached    []byte
}

func newChunkedReader(r io.ReaderAt, size int64, info *CompressionInfo, codec Codec) *chunkedReader {
	return &chunkedReader{r: r, size: size, info: info, codec: codec, cachedIdx: -1}
}

func (cr *chunkedReader) DataLength() int64 { return int64(cr.info.DataLength) }

func (cr *chunkedReader) ReadRange(off int64, n int) ([]byte, error) {
	if off < 0 || off > cr.DataLength() {
		return nil, fmt.Errorf("sstable: read offset %d out of range", off)
	}
	if max := cr.DataLength() - off; int64(n) > max {
		n = int(max)
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		pos := off + int64(len(out))
		idx := cr.info.chunkForOffset(pos)
		chunk, err := cr.chunk(idx)
		if err != nil {
			return nil, err
		}
		within := int(pos - int64(idx)*int64(cr.info.ChunkLength))
		take := within + n - len(out)
		if take > len(chunk) {
			take = len(chunk)
		}
		out = append(out, chunk[within:take]...)
	}
	return out, nil
}

// chunk returns the decompressed bytes of chunk idx, verifying its
// checksum first. A checksum mismatch is fatal for the chunk.
func (cr *chunkedReader) chunk(idx int) ([]byte, error) {
	if idx == cr.cachedIdx {
		return cr.cached, nil
	}
	if idx < 0 || idx >= len(cr.info.ChunkOffsets) {
		return nil, fmt.Errorf("sstable: chunk index %d out of range", idx)
	}

	start := int64(cr.info.ChunkOffsets[idx])
	end := cr.size
	if idx+1 < len(cr.info.ChunkOffsets) {
		end = int64(cr.info.ChunkOffsets[idx+1])
	}
	if end-start < 4 || end > cr.size {
		return nil, &FormatError{Component: ComponentData, Offset: start, Reason: "invalid chunk bounds"}
	}

	raw := make([]byte, end-start)
	if _, err := cr.r.ReadAt(raw, start); err != nil {
		return nil, err
	}

	compressed, sum := raw[:len(raw)-4], binary.BigEndian.Uint32(raw[len(raw)-4:])
	if actual := crc32.Checksum(compressed, castagnoli); actual != sum {
		return nil, &IntegrityError{Component: ComponentData, Chunk: idx, Expected: sum, Actual: actual}
	}

	chunk, err := cr.codec.Decompress(compressed, cr.info.chunkUncompressedLen(idx))
	if err != nil {
		return nil, &FormatError{Component: ComponentData, Offset: start, Reason: err.Error()}
	}
	if len(chunk) != cr.info.chunkUncompressedLen(idx) {
		return nil, &FormatError{Component: ComponentData, Offset: start, Reason: "chunk decompressed to unexpected length"}
	}

	cr.cachedIdx, cr.cached = idx, chunk
	return chunk, nil
}
