package sstable_test

import (
	"bytes"
	"math/rand"

	"github.com/cqlkit/sstable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Codec", func() {
	algorithms := []string{
		sstable.AlgorithmLZ4,
		sstable.AlgorithmSnappy,
		sstable.AlgorithmDeflate,
		sstable.AlgorithmZstd,
	}

	It("should round-trip compressible chunks", func() {
		src := bytes.Repeat([]byte("rows and rows of rows. "), 200)

		for _, name := range algorithms {
			codec, err := sstable.CodecFor(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(codec.Name()).To(Equal(name))

			compressed, err := codec.Compress(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(len(compressed)).To(BeNumerically("<", len(src)), "for %s", name)

			out, err := codec.Decompress(compressed, len(src))
			Expect(err).NotTo(HaveOccurred(), "for %s", name)
			Expect(out).To(Equal(src), "for %s", name)
		}
	})

	It("should round-trip incompressible chunks", func() {
		src := make([]byte, 4096)
		rnd := rand.New(rand.NewSource(1))
		_, err := rnd.Read(src)
		Expect(err).NotTo(HaveOccurred())

		for _, name := range algorithms {
			codec, err := sstable.CodecFor(name)
			Expect(err).NotTo(HaveOccurred())

			compressed, err := codec.Compress(src)
			Expect(err).NotTo(HaveOccurred())

			out, err := codec.Decompress(compressed, len(src))
			Expect(err).NotTo(HaveOccurred(), "for %s", name)
			Expect(out).To(Equal(src), "for %s", name)
		}
	})

	It("should reject unknown algorithms", func() {
		_, err := sstable.CodecFor("BrotliCompressor")

		var uerr *sstable.UnsupportedCompressionError
		Expect(err).To(BeAssignableToTypeOf(uerr))
		Expect(err.Error()).To(ContainSubstring(`"BrotliCompressor"`))
	})
})

var _ = Describe("CompressionInfo", func() {
	It("should round-trip its binary layout", func() {
		in := &sstable.CompressionInfo{
			Algorithm:    sstable.AlgorithmLZ4,
			ChunkLength:  1 << 16,
			DataLength:   150000,
			ChunkOffsets: []uint64{10, 4242, 9001},
		}
		raw, err := in.MarshalBinary()
		Expect(err).NotTo(HaveOccurred())

		out, err := sstable.ParseCompressionInfo(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(in))
	})

	It("should reject malformed chunk tables", func() {
		valid := func() *sstable.CompressionInfo {
			return &sstable.CompressionInfo{
				Algorithm:    sstable.AlgorithmSnappy,
				ChunkLength:  1024,
				DataLength:   2048,
				ChunkOffsets: []uint64{10, 600},
			}
		}

		ci := valid()
		ci.ChunkLength = 0
		raw, err := ci.MarshalBinary()
		Expect(err).NotTo(HaveOccurred())
		_, err = sstable.ParseCompressionInfo(raw)
		Expect(err).To(MatchError(ContainSubstring("zero chunk length")))

		ci = valid()
		ci.ChunkOffsets = []uint64{600, 10}
		raw, err = ci.MarshalBinary()
		Expect(err).NotTo(HaveOccurred())
		_, err = sstable.ParseCompressionInfo(raw)
		Expect(err).To(MatchError(ContainSubstring("not strictly ascending")))

		ci = valid()
		ci.ChunkOffsets = ci.ChunkOffsets[:1]
		raw, err = ci.MarshalBinary()
		Expect(err).NotTo(HaveOccurred())
		_, err = sstable.ParseCompressionInfo(raw)
		Expect(err).To(MatchError(ContainSubstring("does not cover data length")))

		raw, err = valid().MarshalBinary()
		Expect(err).NotTo(HaveOccurred())
		_, err = sstable.ParseCompressionInfo(raw[:7])
		Expect(err).To(MatchError(ContainSubstring("truncated")))
	})
})

var _ = Describe("Digest", func() {
	It("should round-trip", func() {
		raw := sstable.FormatDigest(3405691582)
		Expect(string(raw)).To(Equal("3405691582"))

		sum, err := sstable.ParseDigest(append(raw, '\n'))
		Expect(err).NotTo(HaveOccurred())
		Expect(sum).To(Equal(uint32(3405691582)))
	})

	It("should reject non-decimal content", func() {
		_, err := sstable.ParseDigest([]byte("0xCAFEBABE"))
		Expect(err).To(MatchError(ContainSubstring("not a decimal checksum")))
	})
})
