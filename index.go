package sstable

import (
	"bytes"
	"fmt"
)

// IndexEntry maps a raw partition key to its position in Data.db.
type IndexEntry struct {
	Key        []byte
	DataOffset int64 // uncompressed space
	DataLength int64
}

// partitionIndex navigates Index.db: repeated entries of
// keyLen:uvint key dataOffset:uvint dataLength:uvint, sorted by the raw
// key bytes in the writer's partitioner order. The reader treats that
// order as opaque and only ever compares bytes the way they were written.
// A Summary, when present, narrows the scanned region; without one the
// whole index is scanned.
type partitionIndex struct {
	raw     []byte
	summary *summaryIndex
}

func newPartitionIndex(raw []byte, summary *summaryIndex) *partitionIndex {
	return &partitionIndex{raw: raw, summary: summary}
}

// find locates the entry for an exact raw key.
func (ix *partitionIndex) find(key []byte) (IndexEntry, bool, error) {
	start, end := ix.window(key)
	for pos := start; pos < end; {
		ent, n, err := ix.entryAt(pos)
		if err != nil {
			return IndexEntry{}, false, err
		}
		switch bytes.Compare(ent.Key, key) {
		case 0:
			return ent, true, nil
		case 1:
			return IndexEntry{}, false, nil // sorted: passed the slot
		}
		pos += n
	}
	return IndexEntry{}, false, nil
}

// seek locates the first entry with key >= the given key.
func (ix *partitionIndex) seek(key []byte) (IndexEntry, bool, error) {
	start, _ := ix.window(key)
	for pos := start; pos < int64(len(ix.raw)); {
		ent, n, err := ix.entryAt(pos)
		if err != nil {
			return IndexEntry{}, false, err
		}
		if bytes.Compare(ent.Key, key) >= 0 {
			return ent, true, nil
		}
		pos += n
	}
	return IndexEntry{}, false, nil
}

// nextAfter returns the first entry whose partition starts past the given
// Data.db offset. It lets iterators relocate after a corrupt row without
// trusting any of the corrupted bytes.
func (ix *partitionIndex) nextAfter(dataOff int64) (IndexEntry, bool, error) {
	for pos := int64(0); pos < int64(len(ix.raw)); {
		ent, n, err := ix.entryAt(pos)
		if err != nil {
			return IndexEntry{}, false, err
		}
		if ent.DataOffset > dataOff {
			return ent, true, nil
		}
		pos += n
	}
	return IndexEntry{}, false, nil
}

func (ix *partitionIndex) window(key []byte) (int64, int64) {
	if ix.summary == nil {
		return 0, int64(len(ix.raw))
	}
	start, end := ix.summary.window(key)
	if end < 0 || end > int64(len(ix.raw)) {
		end = int64(len(ix.raw))
	}
	if start > end {
		start = end
	}
	return start, end
}

func (ix *partitionIndex) entryAt(pos int64) (IndexEntry, int64, error) {
	p := ix.raw[pos:]
	key, n, err := decodeBytes(p)
	if err != nil {
		return IndexEntry{}, 0, ix.corrupt(pos, err)
	}
	off, n2, err := DecodeUVInt(p[n:])
	if err != nil {
		return IndexEntry{}, 0, ix.corrupt(pos, err)
	}
	length, n3, err := DecodeUVInt(p[n+n2:])
	if err != nil {
		return IndexEntry{}, 0, ix.corrupt(pos, err)
	}
	ent := IndexEntry{Key: key, DataOffset: int64(off), DataLength: int64(length)}
	return ent, int64(n + n2 + n3), nil
}

func (ix *partitionIndex) corrupt(pos int64, err error) error {
	return &FormatError{Component: ComponentIndex, Offset: pos, Reason: fmt.Sprintf("unreadable entry: %v", err)}
}
