package sstable

import (
	"context"
	"fmt"
	"time"
)

// Row stream flags in Data.db.
const (
	flagEndOfPartition = 0x00
	flagRow            = 0x01
	flagStaticRow      = 0x02
	flagRowDeleted     = 0x04
	flagRowTTL         = 0x08
)

type iterState uint8

const (
	stateAwaitHeader iterState = iota
	stateRows
	statePartitionDone
	stateClosed
)

// PartitionIterator walks Data.db partition by partition and row by row.
// Each iterator owns an independent view of the file, so any number of
// them may run concurrently. Cancellation is checked between rows, never
// mid-cell, so a cancelled read never yields a partially decoded value.
type PartitionIterator struct {
	r   *Reader
	ctx context.Context
	cur *cursor

	limit    int64 // decode stops at this logical offset
	state    iterState
	part     *Partition
	row      Row
	static   []Cell
	skipFrom int64 // last corruption-recovery target

	err error
}

func newPartitionIterator(r *Reader, ctx context.Context, start, limit int64) *PartitionIterator {
	dr := r.newDataReader()
	if limit < 0 || limit > dr.DataLength() {
		limit = dr.DataLength()
	}
	return &PartitionIterator{
		r:        r,
		ctx:      ctx,
		cur:      newCursor(dr, start),
		limit:    limit,
		skipFrom: -1,
	}
}

// NextPartition advances to the next partition header and returns true on
// success. The current partition, if any, is skipped to its end first.
func (it *PartitionIterator) NextPartition() bool {
	for {
		if !it.checkCtx() {
			return false
		}

		switch it.state {
		case stateClosed:
			return false
		case stateRows:
			// drain the remaining rows of the current partition
			for it.Next() {
			}
			if it.err != nil || it.state == stateClosed {
				return false
			}
			continue
		}

		if it.cur.pos >= it.limit {
			it.state = stateClosed
			return false
		}

		if err := it.decodePartitionHeader(); err != nil {
			if it.relocate(err) {
				continue
			}
			return false
		}
		it.state = stateRows
		return true
	}
}

// Partition returns the current partition header. Deleted partitions are
// still exposed, marked by their Deletion field, so that tombstone-aware
// tooling can see them.
func (it *PartitionIterator) Partition() *Partition { return it.part }

// StaticCells returns the static column values of the current partition.
func (it *PartitionIterator) StaticCells() []Cell { return it.static }

// Next advances to the next row within the current partition and returns
// true if one was decoded.
func (it *PartitionIterator) Next() bool {
	if it.state != stateRows || !it.checkCtx() {
		return false
	}

	off := it.cur.pos
	flag, err := it.cur.byte()
	if err != nil {
		it.relocate(err)
		return false
	}

	if flag == flagEndOfPartition {
		it.state = statePartitionDone
		return false
	}
	if flag&flagRow == 0 {
		it.relocate(fmt.Errorf("sstable: unknown row flag 0x%02x", flag))
		return false
	}

	if err := it.decodeRow(off, flag); err != nil {
		it.relocate(err)
		return false
	}
	return true
}

// Row returns the row decoded by the last successful Next. The value is
// reused between calls and must be copied if retained.
func (it *PartitionIterator) Row() *Row { return &it.row }

// Err exposes iterator errors, if any.
func (it *PartitionIterator) Err() error { return it.err }

// Release releases the iterator. It must not be used afterwards.
func (it *PartitionIterator) Release() {
	it.state = stateClosed
	if it.err == nil {
		it.err = errReleased
	}
}

// --------------------------------------------------------------------

func (it *PartitionIterator) checkCtx() bool {
	if it.ctx != nil {
		if err := it.ctx.Err(); err != nil {
			it.err = err
			it.state = stateClosed
			return false
		}
	}
	return true
}

// relocate classifies a decode failure as a CorruptRowError and, when the
// skip policy and an Index allow it, repositions the cursor at the next
// partition. Recovery is only possible because the Index locates partition
// starts independently of the corrupted bytes.
func (it *PartitionIterator) relocate(cause error) bool {
	off := it.cur.pos
	cre := &CorruptRowError{Offset: off, Cause: cause}

	if it.r.opts.SkipCorruptPartitions && it.r.index != nil {
		base := it.skipFrom
		if it.part != nil && it.part.Offset > base {
			base = it.part.Offset
		}
		if ent, ok, err := it.r.index.nextAfter(base); err == nil && ok && ent.DataOffset < it.limit {
			it.r.opts.Logger.Warn().
				Int64("offset", off).
				Err(cause).
				Msg("skipping corrupt partition")
			it.skipFrom = ent.DataOffset
			it.cur.seekTo(ent.DataOffset)
			it.state = stateAwaitHeader
			return true
		}
	}

	it.err = cre
	it.state = stateClosed
	return false
}

func (it *PartitionIterator) decodePartitionHeader() error {
	off := it.cur.pos

	rawKey, err := it.cur.lengthPrefixed()
	if err != nil {
		return err
	}
	key, err := it.r.schema.decodePartitionKey(rawKey)
	if err != nil {
		return err
	}

	markedAt, err := it.cur.svint()
	if err != nil {
		return err
	}
	localDeletion, err := it.cur.svint()
	if err != nil {
		return err
	}

	it.part = &Partition{
		Key:    key,
		RawKey: rawKey,
		Deletion: PartitionDeletion{
			MarkedForDeleteAt: markedAt,
			LocalDeletionTime: localDeletion,
		},
		Offset: off,
	}
	it.static = nil

	// a static row, when present, leads the partition's row stream
	peek, err := it.cur.peek(1)
	if err != nil {
		return err
	}
	if len(peek) == 1 && peek[0]&flagStaticRow != 0 && peek[0]&flagRow != 0 {
		flagOff := it.cur.pos
		flag, _ := it.cur.byte()
		if err := it.decodeRow(flagOff, flag); err != nil {
			return err
		}
		it.static = it.row.Cells
		for i := range it.static {
			if col, ok := it.r.schema.Column(it.static[i].Column); !ok || !col.Static {
				return fmt.Errorf("sstable: non-static column %q in static row", it.static[i].Column)
			}
		}
	}
	return nil
}

func (it *PartitionIterator) decodeRow(off int64, flag byte) error {
	schema := it.r.schema
	now := it.r.opts.Now()

	it.row = Row{Offset: off, StaticCells: it.static}

	if flag&flagStaticRow == 0 {
		cols := schema.ClusteringColumns()
		it.row.Clustering = make([]Value, 0, len(cols))
		for _, col := range cols {
			sub, err := it.cur.frame()
			if err != nil {
				return err
			}
			if sub == nil {
				it.row.Clustering = append(it.row.Clustering, Null)
				continue
			}
			v, _, err := decodeValue(sub, col.Type(), 0, it.r.opts.MaxNestingDepth)
			if err != nil {
				return err
			}
			it.row.Clustering = append(it.row.Clustering, v)
		}
	}

	ts, err := it.cur.svint()
	if err != nil {
		return err
	}
	it.row.Timestamp = ts

	if flag&flagRowTTL != 0 {
		ttl, err := it.cur.uvint()
		if err != nil {
			return err
		}
		expires, err := it.cur.svint()
		if err != nil {
			return err
		}
		it.row.TTL = int64(ttl)
		it.row.ExpiresAt = expires
	}
	if flag&flagRowDeleted != 0 {
		it.row.Deleted = true
	}
	// expired liveness reclassifies the row as deleted at read time
	if it.row.ExpiresAt != 0 && now.Unix() >= it.row.ExpiresAt {
		it.row.Deleted = true
	}

	count, err := it.cur.uvint()
	if err != nil {
		return err
	}
	if count > uint64(len(schema.Columns)) {
		return fmt.Errorf("sstable: row claims %d cells, schema has %d columns", count, len(schema.Columns))
	}

	static := flag&flagStaticRow != 0
	it.row.Cells = make([]Cell, 0, count)
	for i := uint64(0); i < count; i++ {
		cell, err := it.decodeCell(static, now)
		if err != nil {
			return err
		}
		it.row.Cells = append(it.row.Cells, cell)
	}
	return nil
}

// Cell flags.
const (
	cellTombstone    = 0x01
	cellHasTimestamp = 0x02
	cellHasTTL       = 0x04
)

func (it *PartitionIterator) decodeCell(static bool, now time.Time) (Cell, error) {
	schema := it.r.schema

	idx, err := it.cur.uvint()
	if err != nil {
		return Cell{}, err
	}
	if idx >= uint64(len(schema.Columns)) {
		return Cell{}, fmt.Errorf("sstable: cell references column %d of %d", idx, len(schema.Columns))
	}
	col := &schema.Columns[int(idx)]
	if col.Static != static {
		return Cell{}, fmt.Errorf("sstable: column %q staticness mismatch", col.Name)
	}
	if schema.isKeyColumn(int(idx)) {
		return Cell{}, fmt.Errorf("sstable: cell references key column %q", col.Name)
	}

	flags, err := it.cur.byte()
	if err != nil {
		return Cell{}, err
	}

	cell := Cell{Column: col.Name, Value: Null, Timestamp: it.row.Timestamp}
	if flags&cellHasTimestamp != 0 {
		ts, err := it.cur.svint()
		if err != nil {
			return Cell{}, err
		}
		cell.Timestamp = ts
	}
	if flags&cellHasTTL != 0 {
		ttl, err := it.cur.uvint()
		if err != nil {
			return Cell{}, err
		}
		expires, err := it.cur.svint()
		if err != nil {
			return Cell{}, err
		}
		cell.TTL = int64(ttl)
		cell.ExpiresAt = expires
	}

	if flags&cellTombstone != 0 {
		cell.Tombstone = true
		return cell, nil
	}

	sub, err := it.cur.frame()
	if err != nil {
		return Cell{}, err
	}
	if sub != nil {
		v, _, err := decodeValue(sub, col.Type(), 0, it.r.opts.MaxNestingDepth)
		if err != nil {
			return Cell{}, err
		}
		cell.Value = v
	}

	// a TTL past expiry turns the cell into a tombstone, raw bytes or not
	if !cell.Live(now) {
		cell.Tombstone = true
		cell.Value = Null
	}
	return cell, nil
}

// --------------------------------------------------------------------

// cursor provides buffered sequential decoding over a dataReader.
type cursor struct {
	dr   dataReader
	size int64

	buf    []byte
	bufOff int64 // logical offset of buf[0]
	pos    int64
}

const cursorWindow = 8 << 10

func newCursor(dr dataReader, off int64) *cursor {
	return &cursor{dr: dr, size: dr.DataLength(), pos: off}
}

func (c *cursor) seekTo(off int64) { c.pos = off }

// peek returns up to n bytes at the current position without advancing;
// the result is only short at end of data.
func (c *cursor) peek(n int) ([]byte, error) {
	if rem := c.size - c.pos; int64(n) > rem {
		n = int(rem)
	}
	if n <= 0 {
		return nil, nil
	}

	have := c.pos - c.bufOff
	if c.buf == nil || have < 0 || have+int64(n) > int64(len(c.buf)) {
		fetch := n
		if fetch < cursorWindow {
			fetch = cursorWindow
		}
		buf, err := c.dr.ReadRange(c.pos, fetch)
		if err != nil {
			return nil, err
		}
		c.buf, c.bufOff = buf, c.pos
		have = 0
	}
	return c.buf[have : have+int64(n)], nil
}

// take consumes exactly n bytes.
func (c *cursor) take(n int) ([]byte, error) {
	p, err := c.peek(n)
	if err != nil {
		return nil, err
	}
	if len(p) < n {
		return nil, errTruncated
	}
	c.pos += int64(n)
	return p, nil
}

func (c *cursor) byte() (byte, error) {
	p, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (c *cursor) uvint() (uint64, error) {
	p, err := c.peek(MaxVIntLen)
	if err != nil {
		return 0, err
	}
	u, n, err := DecodeUVInt(p)
	if err != nil {
		return 0, err
	}
	c.pos += int64(n)
	return u, nil
}

func (c *cursor) svint() (int64, error) {
	u, err := c.uvint()
	if err != nil {
		return 0, err
	}
	return unzigzag(u), nil
}

// lengthPrefixed consumes a uvint-framed byte run and copies it out.
func (c *cursor) lengthPrefixed() ([]byte, error) {
	u, err := c.uvint()
	if err != nil {
		return nil, err
	}
	if u > uint64(c.size-c.pos) {
		return nil, errTruncated
	}
	p, err := c.take(int(u))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), p...), nil
}

// frame consumes a svint-framed byte run; a length of -1 yields nil.
func (c *cursor) frame() ([]byte, error) {
	l, err := c.svint()
	if err != nil {
		return nil, err
	}
	if l == -1 {
		return nil, nil
	}
	if l < 0 || l > c.size-c.pos {
		return nil, errTruncated
	}
	p, err := c.take(int(l))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), p...), nil
}
