package sstable

import (
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a CQL type or the type of a decoded Value.
type Kind uint8

// Supported CQL kinds.
const (
	KindNull Kind = iota
	KindBoolean
	KindTinyInt
	KindSmallInt
	KindInt
	KindBigInt
	KindCounter
	KindFloat
	KindDouble
	KindDecimal
	KindVarint
	KindAscii
	KindText
	KindBlob
	KindUUID
	KindTimeUUID
	KindTimestamp
	KindDate
	KindTime
	KindInet
	KindDuration
	KindList
	KindSet
	KindMap
	KindTuple
	KindUDT
)

var kindNames = map[Kind]string{
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindTinyInt:   "tinyint",
	KindSmallInt:  "smallint",
	KindInt:       "int",
	KindBigInt:    "bigint",
	KindCounter:   "counter",
	KindFloat:     "float",
	KindDouble:    "double",
	KindDecimal:   "decimal",
	KindVarint:    "varint",
	KindAscii:     "ascii",
	KindText:      "text",
	KindBlob:      "blob",
	KindUUID:      "uuid",
	KindTimeUUID:  "timeuuid",
	KindTimestamp: "timestamp",
	KindDate:      "date",
	KindTime:      "time",
	KindInet:      "inet",
	KindDuration:  "duration",
	KindList:      "list",
	KindSet:       "set",
	KindMap:       "map",
	KindTuple:     "tuple",
	KindUDT:       "udt",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsComplex reports whether values of this kind nest other values.
func (k Kind) IsComplex() bool { return k >= KindList }

// --------------------------------------------------------------------

// Value is the decoded form of a single CQL value: a tagged union over all
// supported types. Only the fields relevant to Kind are populated. Decoded
// values are read-only; the package never mutates one after returning it.
type Value struct {
	Kind Kind

	Bool  bool
	Int   int64   // TinyInt..Counter, Timestamp (ms), Time (ns), Date (days, epoch-biased)
	Float float64 // Float, Double
	Text  string  // Ascii, Text
	Bytes []byte  // Blob, Inet (4 or 16 raw address bytes)

	UUID uuid.UUID // UUID, TimeUUID

	Big   *big.Int // Varint; Decimal unscaled magnitude
	Scale int32    // Decimal

	Months int32 // Duration
	Days   int32
	Nanos  int64

	Elems   []Value    // List, Set, Tuple elements; UDT field values
	Entries []MapEntry // Map, in encoded order
	Fields  []string   // UDT field names, parallel to Elems
	Name    string     // UDT type name

	// MissingFields counts UDT fields the schema defines but the physical
	// encoding did not carry (schema evolution); they decode as nulls at
	// the tail of Elems.
	MissingFields int

	// Frozen records that the value was declared frozen<...>. It affects
	// only encoding and mutability semantics, never the decoded shape.
	Frozen bool
}

// MapEntry is a single key/value pair of a decoded map.
type MapEntry struct {
	Key   Value
	Value Value
}

// Null is the null value.
var Null = Value{Kind: KindNull}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Field returns the named UDT field value.
func (v Value) Field(name string) (Value, bool) {
	for i, f := range v.Fields {
		if f == name {
			return v.Elems[i], true
		}
	}
	return Null, false
}

// --------------------------------------------------------------------

// Cell is a single column value together with its write metadata.
type Cell struct {
	Column    string
	Value     Value
	Timestamp int64 // write timestamp, microseconds since epoch
	TTL       int64 // seconds, 0 = none
	ExpiresAt int64 // unix seconds, 0 = none
	Tombstone bool
}

// Live reports whether the cell holds a live value at the given time. An
// expired TTL cell counts as a tombstone even if its raw bytes survive.
func (c *Cell) Live(now time.Time) bool {
	if c.Tombstone {
		return false
	}
	return c.ExpiresAt == 0 || now.Unix() < c.ExpiresAt
}

// Row is one clustering row of a partition.
type Row struct {
	Clustering []Value
	Cells      []Cell

	// StaticCells are the partition's static column values, decoded once
	// per partition and shared (read-only) across its rows.
	StaticCells []Cell

	Deleted   bool  // row tombstone, or liveness TTL expired at read time
	Timestamp int64 // row liveness timestamp, microseconds
	TTL       int64 // seconds, 0 = none
	ExpiresAt int64 // unix seconds, 0 = none

	// Offset is the row's position in Data.db, in uncompressed space.
	Offset int64
}

// Cell returns the named regular cell of the row.
func (r *Row) Cell(name string) (Cell, bool) {
	for _, c := range r.Cells {
		if c.Column == name {
			return c, true
		}
	}
	return Cell{}, false
}

// StaticCell returns the named static cell cached for the row's partition.
func (r *Row) StaticCell(name string) (Cell, bool) {
	for _, c := range r.StaticCells {
		if c.Column == name {
			return c, true
		}
	}
	return Cell{}, false
}

// --------------------------------------------------------------------

// liveMarker is the MarkedForDeleteAt sentinel of a live partition.
const liveMarker = math.MinInt64

// PartitionDeletion is a partition-level tombstone.
type PartitionDeletion struct {
	MarkedForDeleteAt int64 // microseconds; math.MinInt64 = live
	LocalDeletionTime int64 // unix seconds
}

// IsLive reports whether the partition carries no deletion marker.
func (d PartitionDeletion) IsLive() bool { return d.MarkedForDeleteAt == liveMarker }

// Partition is the header of one partition in key order.
type Partition struct {
	Key      Value  // decoded partition key (tuple for composite keys)
	RawKey   []byte // key bytes exactly as stored
	Deletion PartitionDeletion

	// Offset is the partition's position in Data.db, in uncompressed space.
	Offset int64
}
