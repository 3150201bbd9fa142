package sstable

// Stats is the table-level metadata from Statistics.db: the write
// timestamp range and row/tombstone counts recorded by the writer.
// Layout: minTimestamp:svint maxTimestamp:svint partitionCount:uvint
// rowCount:uvint tombstoneCount:uvint.
type Stats struct {
	MinTimestamp   int64 // microseconds
	MaxTimestamp   int64
	PartitionCount uint64
	RowCount       uint64
	TombstoneCount uint64
}

func parseStatistics(p []byte) (Stats, error) {
	var s Stats
	pos := 0

	fail := func(err error) (Stats, error) {
		return Stats{}, &FormatError{Component: ComponentStatistics, Offset: int64(pos), Reason: err.Error()}
	}

	v, n, err := DecodeVInt(p)
	if err != nil {
		return fail(err)
	}
	s.MinTimestamp, pos = v, pos+n

	v, n, err = DecodeVInt(p[pos:])
	if err != nil {
		return fail(err)
	}
	s.MaxTimestamp, pos = v, pos+n

	u, n, err := DecodeUVInt(p[pos:])
	if err != nil {
		return fail(err)
	}
	s.PartitionCount, pos = u, pos+n

	u, n, err = DecodeUVInt(p[pos:])
	if err != nil {
		return fail(err)
	}
	s.RowCount, pos = u, pos+n

	u, _, err = DecodeUVInt(p[pos:])
	if err != nil {
		return fail(err)
	}
	s.TombstoneCount = u

	return s, nil
}

// MarshalBinary is the inverse of the Statistics.db parser.
func (s Stats) MarshalBinary() ([]byte, error) {
	dst := AppendVInt(nil, s.MinTimestamp)
	dst = AppendVInt(dst, s.MaxTimestamp)
	dst = AppendUVInt(dst, s.PartitionCount)
	dst = AppendUVInt(dst, s.RowCount)
	dst = AppendUVInt(dst, s.TombstoneCount)
	return dst, nil
}
