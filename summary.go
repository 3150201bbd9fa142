package sstable

import (
	"bytes"
	"encoding/binary"
)

// summaryIndex is the sampled index from Summary.db: every interval-th
// Index.db entry's key and byte offset. Layout: interval (u32), sample
// count (u32), then keyLen:uvint key indexOffset:uvint per sample.
type summaryIndex struct {
	interval uint32
	keys     [][]byte
	offsets  []int64 // offsets into Index.db
}

func parseSummary(p []byte) (*summaryIndex, error) {
	if len(p) < 8 {
		return nil, &FormatError{Component: ComponentSummary, Reason: "truncated header"}
	}
	s := &summaryIndex{interval: binary.BigEndian.Uint32(p)}
	count := int(binary.BigEndian.Uint32(p[4:]))

	pos := 8
	for i := 0; i < count; i++ {
		key, n, err := decodeBytes(p[pos:])
		if err != nil {
			return nil, &FormatError{Component: ComponentSummary, Offset: int64(pos), Reason: err.Error()}
		}
		pos += n
		off, n, err := DecodeUVInt(p[pos:])
		if err != nil {
			return nil, &FormatError{Component: ComponentSummary, Offset: int64(pos), Reason: err.Error()}
		}
		pos += n

		s.keys = append(s.keys, key)
		s.offsets = append(s.offsets, int64(off))
	}
	if pos != len(p) {
		return nil, &FormatError{Component: ComponentSummary, Offset: int64(pos), Reason: "trailing bytes"}
	}
	return s, nil
}

// window binary-searches the samples and returns the Index.db byte region
// that may contain the key. An end of -1 means "until end of index".
func (s *summaryIndex) window(key []byte) (int64, int64) {
	if len(s.keys) == 0 {
		return 0, -1
	}

	// last sample with sampleKey <= key
	lo, hi := 0, len(s.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(s.keys[mid], key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if lo == 0 {
		// key sorts before the first sample; it can only live at the very
		// start of the index
		return 0, s.offsets[0]
	}
	start := s.offsets[lo-1]
	if lo < len(s.offsets) {
		return start, s.offsets[lo]
	}
	return start, -1
}
