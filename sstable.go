package sstable

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// magic marks the head of every Data.db file.
var magic = []byte{90, 195, 113, 177, 111, 97, 210, 94}

// formatVersion is the only SSTable format version this package reads.
const formatVersion = "oa"

// Component names within an SSTable directory. Files are named
// "<generation>-big-<Component>", e.g. "1-big-Data.db".
const (
	ComponentData            = "Data.db"
	ComponentIndex           = "Index.db"
	ComponentSummary         = "Summary.db"
	ComponentStatistics      = "Statistics.db"
	ComponentCompressionInfo = "CompressionInfo.db"
	ComponentFilter          = "Filter.db"
	ComponentDigest          = "Digest.crc32"
	ComponentTOC             = "TOC.txt"
)

// ErrNotFound is returned when a partition key cannot be found.
var ErrNotFound = errors.New("sstable: not found")

// ErrMalformedVInt is returned when a variable-length integer is truncated
// or claims more bytes than remain in the input.
var ErrMalformedVInt = errors.New("sstable: malformed vint")

// ErrExcessiveNesting is returned when a complex value exceeds the maximum
// nesting depth. It fails the affected cell only, never the whole file.
var ErrExcessiveNesting = errors.New("sstable: excessive nesting")

// ErrInvalidEncoding is returned when text bytes are not valid UTF-8
// (or not 7-bit clean for the ascii type).
var ErrInvalidEncoding = errors.New("sstable: invalid text encoding")

var (
	errClosed    = errors.New("sstable: is closed")
	errReleased  = errors.New("sstable: iterator was released")
	errTruncated = errors.New("sstable: truncated value")
)

// FormatError indicates a structurally unusable component file: bad magic,
// unsupported version, or an unparseable component layout. It is fatal for
// the affected file.
type FormatError struct {
	Component string
	Offset    int64
	Reason    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("sstable: bad %s at offset %d: %s", e.Component, e.Offset, e.Reason)
}

// IntegrityError indicates a checksum mismatch on a compressed chunk
// (Chunk >= 0) or on the whole-file digest (Chunk == -1). It is always
// fatal for the affected chunk or file.
type IntegrityError struct {
	Component string
	Chunk     int
	Expected  uint32
	Actual    uint32
}

func (e *IntegrityError) Error() string {
	if e.Chunk < 0 {
		return fmt.Sprintf("sstable: %s digest mismatch: expected %08x, found %08x", e.Component, e.Expected, e.Actual)
	}
	return fmt.Sprintf("sstable: %s chunk %d checksum mismatch: expected %08x, found %08x", e.Component, e.Chunk, e.Expected, e.Actual)
}

// CorruptRowError reports unreadable row bytes at a known Data.db offset
// (in uncompressed space). Callers holding an Index may skip forward to the
// next partition; without one the stream is unrecoverable past this point.
type CorruptRowError struct {
	Offset int64
	Cause  error
}

func (e *CorruptRowError) Error() string {
	return fmt.Sprintf("sstable: corrupt row at offset %d: %v", e.Offset, e.Cause)
}

func (e *CorruptRowError) Unwrap() error { return e.Cause }

// SchemaError indicates an unresolvable or malformed table schema. It is
// raised at schema load time, before any decoding starts.
type SchemaError struct {
	Table  string
	Name   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("sstable: schema %q: %s: %s", e.Table, e.Name, e.Reason)
	}
	return fmt.Sprintf("sstable: schema %q: %s", e.Table, e.Reason)
}

// UnsupportedCompressionError is returned at open time when
// CompressionInfo.db names an algorithm this package cannot decompress.
type UnsupportedCompressionError struct {
	Algorithm string
}

func (e *UnsupportedCompressionError) Error() string {
	return fmt.Sprintf("sstable: unsupported compression algorithm %q", e.Algorithm)
}

// --------------------------------------------------------------------

// Options configure a Reader.
type Options struct {
	// Logger receives open and scan diagnostics.
	// Default: a no-op logger.
	Logger *zerolog.Logger

	// Now supplies the clock used to expire TTL cells at read time.
	// Default: time.Now.
	Now func() time.Time

	// MaxNestingDepth bounds recursion when decoding complex values.
	// Default: 32.
	MaxNestingDepth int

	// VerifyDigest validates Digest.crc32 against the whole Data.db file
	// during Open.
	VerifyDigest bool

	// SkipCorruptPartitions lets iterators relocate to the next partition
	// (via the Index) after a CorruptRowError instead of stopping.
	SkipCorruptPartitions bool
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.Logger == nil {
		nop := zerolog.Nop()
		oo.Logger = &nop
	}
	if oo.Now == nil {
		oo.Now = time.Now
	}
	if oo.MaxNestingDepth < 1 {
		oo.MaxNestingDepth = 32
	}
	return &oo
}
