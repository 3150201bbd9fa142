package sstable

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync/atomic"
)

// dataHeaderLen is the raw Data.db prefix: 8 magic bytes plus the two
// format version characters. It sits outside both compression and the
// uncompressed offset space.
const dataHeaderLen = 8 + len(formatVersion)

// Reader provides random and sequential access to one SSTable generation.
// A Reader is safe for concurrent use; each iterator it hands out owns an
// independent decompression state.
type Reader struct {
	schema *TableSchema
	opts   *Options
	desc   *Descriptor

	data  *os.File
	dsize int64

	info  *CompressionInfo
	codec Codec

	filter *Filter
	index  *partitionIndex

	stats    Stats
	hasStats bool

	closed atomic.Bool
}

// Open opens the SSTable generation found in dir and prepares it for reads
// against the given schema. Auxiliary components degrade gracefully: a
// missing Filter disables negative lookups, a missing Index falls back to
// sequential scans, a missing Summary widens index scans. A missing or
// unreadable Data.db is fatal.
func Open(dir string, schema *TableSchema, opts *Options) (*Reader, error) {
	if schema == nil {
		return nil, &SchemaError{Reason: "nil schema"}
	}
	opts = opts.norm()

	desc, err := Describe(dir)
	if err != nil {
		return nil, err
	}

	path, _ := desc.Path(ComponentData)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{schema: schema, opts: opts, desc: desc, data: f}
	if err := r.init(); err != nil {
		_ = f.Close()
		return nil, err
	}

	evt := opts.Logger.Debug().
		Str("dir", dir).
		Int("generation", desc.Generation).
		Str("table", schema.TableName)
	if r.info != nil {
		evt = evt.Str("compression", r.info.Algorithm)
	}
	evt.Msg("sstable opened")
	return r, nil
}

func (r *Reader) init() error {
	fi, err := r.data.Stat()
	if err != nil {
		return err
	}
	r.dsize = fi.Size()

	header := make([]byte, dataHeaderLen)
	if _, err := r.data.ReadAt(header, 0); err != nil {
		return &FormatError{Component: ComponentData, Reason: "truncated header"}
	}
	if !bytes.Equal(header[:len(magic)], magic) {
		return &FormatError{Component: ComponentData, Reason: "bad magic"}
	}
	if v := string(header[len(magic):]); v != formatVersion {
		return &FormatError{
			Component: ComponentData,
			Offset:    int64(len(magic)),
			Reason:    fmt.Sprintf("unsupported format version %q", v),
		}
	}

	if raw, err := r.desc.readComponent(ComponentCompressionInfo); err != nil {
		return err
	} else if raw != nil {
		info, err := ParseCompressionInfo(raw)
		if err != nil {
			return err
		}
		codec, err := CodecFor(info.Algorithm)
		if err != nil {
			return err
		}
		r.info, r.codec = info, codec
	}

	if r.opts.VerifyDigest {
		if raw, err := r.desc.readComponent(ComponentDigest); err != nil {
			return err
		} else if raw != nil {
			want, err := ParseDigest(raw)
			if err != nil {
				return err
			}
			if err := verifyDigest(r.data, r.dsize, want); err != nil {
				return err
			}
		}
	}

	if raw, err := r.desc.readComponent(ComponentFilter); err != nil {
		return err
	} else if raw != nil {
		if r.filter, err = ParseFilter(raw); err != nil {
			return err
		}
	}

	var summary *summaryIndex
	if raw, err := r.desc.readComponent(ComponentSummary); err != nil {
		return err
	} else if raw != nil {
		if summary, err = parseSummary(raw); err != nil {
			return err
		}
	}
	if raw, err := r.desc.readComponent(ComponentIndex); err != nil {
		return err
	} else if raw != nil {
		r.index = newPartitionIndex(raw, summary)
	}

	if raw, err := r.desc.readComponent(ComponentStatistics); err != nil {
		return err
	} else if raw != nil {
		if r.stats, err = parseStatistics(raw); err != nil {
			return err
		}
		r.hasStats = true
	}
	return nil
}

// Close closes the underlying Data.db file. Iterators created earlier must
// not be used afterwards.
func (r *Reader) Close() error {
	if r.closed.Swap(true) {
		return errClosed
	}
	return r.data.Close()
}

// Schema returns the table schema the Reader decodes against.
func (r *Reader) Schema() *TableSchema { return r.schema }

// Generation returns the SSTable generation number.
func (r *Reader) Generation() int { return r.desc.Generation }

// Stats returns the Statistics.db metadata, if the component was present.
func (r *Reader) Stats() (Stats, bool) { return r.stats, r.hasStats }

// MightContain consults the bloom filter for a raw partition key. It
// returns true when no filter is present: absence of a filter never turns
// into a false negative.
func (r *Reader) MightContain(key []byte) bool {
	if r.filter == nil {
		return true
	}
	return r.filter.MightContain(key)
}

// Scan iterates all partitions in key order. The caller must Release the
// iterator.
func (r *Reader) Scan(ctx context.Context) (*PartitionIterator, error) {
	if r.closed.Load() {
		return nil, errClosed
	}
	return newPartitionIterator(r, ctx, 0, -1), nil
}

// Get returns an iterator positioned on the partition with the exact raw
// key, already advanced past its header, or ErrNotFound. The iterator is
// bounded to that single partition.
func (r *Reader) Get(ctx context.Context, key []byte) (*PartitionIterator, error) {
	if r.closed.Load() {
		return nil, errClosed
	}
	if !r.MightContain(key) {
		return nil, ErrNotFound
	}

	if r.index == nil {
		return r.getScan(ctx, key)
	}

	ent, ok, err := r.index.find(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	it := newPartitionIterator(r, ctx, ent.DataOffset, ent.DataOffset+ent.DataLength)
	if !it.NextPartition() {
		if err := it.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	if !bytes.Equal(it.Partition().RawKey, key) {
		return nil, &FormatError{
			Component: ComponentIndex,
			Reason:    fmt.Sprintf("entry for key %x points at partition %x", key, it.Partition().RawKey),
		}
	}
	return it, nil
}

// getScan is the degraded Get path without an Index: walk partitions in
// order until the key matches.
func (r *Reader) getScan(ctx context.Context, key []byte) (*PartitionIterator, error) {
	r.opts.Logger.Debug().Msg("no index component, falling back to sequential lookup")

	it := newPartitionIterator(r, ctx, 0, -1)
	for it.NextPartition() {
		if bytes.Equal(it.Partition().RawKey, key) {
			return it, nil
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	it.Release()
	return nil, ErrNotFound
}

// SeekPartition returns an iterator positioned before the first partition
// whose raw key is >= the given key, continuing to the end of the table.
// NextPartition must be called to load the first partition. Requires an
// Index component.
func (r *Reader) SeekPartition(ctx context.Context, key []byte) (*PartitionIterator, error) {
	if r.closed.Load() {
		return nil, errClosed
	}
	if r.index == nil {
		return nil, &FormatError{Component: ComponentIndex, Reason: "missing, cannot seek"}
	}

	ent, ok, err := r.index.seek(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return newPartitionIterator(r, ctx, ent.DataOffset, -1), nil
}

// newDataReader builds a fresh view over Data.db. Each iterator gets its
// own so chunk caches are never shared across goroutines.
func (r *Reader) newDataReader() dataReader {
	if r.info == nil {
		return &rawReader{r: r.data, base: int64(dataHeaderLen), size: r.dsize - int64(dataHeaderLen)}
	}
	return newChunkedReader(r.data, r.dsize, r.info, r.codec)
}
