package sstable

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
)

// ChunkChecksum returns the CRC32-C checksum stored after each compressed
// chunk in Data.db.
func ChunkChecksum(compressed []byte) uint32 {
	return crc32.Checksum(compressed, castagnoli)
}

// ParseDigest parses Digest.crc32: the CRC32 (IEEE) of the whole Data.db
// file, written as an ASCII decimal.
func ParseDigest(p []byte) (uint32, error) {
	s := string(bytes.TrimSpace(p))
	u, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, &FormatError{Component: ComponentDigest, Reason: fmt.Sprintf("not a decimal checksum: %q", s)}
	}
	return uint32(u), nil
}

// FormatDigest renders a whole-file checksum the way Digest.crc32 stores it.
func FormatDigest(sum uint32) []byte {
	return []byte(strconv.FormatUint(uint64(sum), 10))
}

// verifyDigest streams the whole Data.db file through CRC32 and compares
// the result against the recorded digest. A mismatch is fatal for the file.
func verifyDigest(r io.ReaderAt, size int64, want uint32) error {
	h := crc32.NewIEEE()
	buf := make([]byte, 64<<10)

	for off := int64(0); off < size; {
		n := len(buf)
		if max := size - off; int64(n) > max {
			n = int(max)
		}
		if _, err := r.ReadAt(buf[:n], off); err != nil {
			return err
		}
		_, _ = h.Write(buf[:n])
		off += int64(n)
	}

	if actual := h.Sum32(); actual != want {
		return &IntegrityError{Component: ComponentData, Chunk: -1, Expected: want, Actual: actual}
	}
	return nil
}
