package sstable_test

import (
	"fmt"

	"github.com/cqlkit/sstable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Filter", func() {
	It("should never report a false negative", func() {
		subject := sstable.NewFilter(1000, 0.01)
		for i := 0; i < 1000; i++ {
			subject.Add([]byte(fmt.Sprintf("key-%04d", i)))
		}
		for i := 0; i < 1000; i++ {
			Expect(subject.MightContain([]byte(fmt.Sprintf("key-%04d", i)))).To(BeTrue(), "for key-%04d", i)
		}
	})

	It("should keep false positives near the target rate", func() {
		subject := sstable.NewFilter(1000, 0.01)
		for i := 0; i < 1000; i++ {
			subject.Add([]byte(fmt.Sprintf("key-%04d", i)))
		}

		hits := 0
		for i := 0; i < 10000; i++ {
			if subject.MightContain([]byte(fmt.Sprintf("other-%05d", i))) {
				hits++
			}
		}
		Expect(hits).To(BeNumerically("<", 300)) // 1% target, generous margin
	})

	It("should survive its binary layout", func() {
		subject := sstable.NewFilter(100, 0.01)
		subject.Add([]byte("present"))

		raw, err := subject.MarshalBinary()
		Expect(err).NotTo(HaveOccurred())

		out, err := sstable.ParseFilter(raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.BitCount()).To(Equal(subject.BitCount()))
		Expect(out.HashCount()).To(Equal(subject.HashCount()))
		Expect(out.MightContain([]byte("present"))).To(BeTrue())
	})

	It("should reject malformed layouts", func() {
		_, err := sstable.ParseFilter([]byte{0, 1, 2})
		Expect(err).To(MatchError(ContainSubstring("truncated header")))

		subject := sstable.NewFilter(100, 0.01)
		raw, err := subject.MarshalBinary()
		Expect(err).NotTo(HaveOccurred())

		_, err = sstable.ParseFilter(raw[:len(raw)-8])
		Expect(err).To(MatchError(ContainSubstring("bit words do not match")))
	})
})
