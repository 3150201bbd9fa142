package sstable_test

import (
	"os"
	"path/filepath"

	"github.com/cqlkit/sstable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Describe", func() {
	var dir string

	write := func(name string, content string) {
		Expect(os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)).To(Succeed())
	}

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "sstable-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(dir)
	})

	It("should discover components from the directory listing", func() {
		write("3-big-Data.db", "x")
		write("3-big-Index.db", "x")
		write("3-big-Filter.db", "x")
		write("notes.txt", "unrelated")

		desc, err := sstable.Describe(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(desc.Generation).To(Equal(3))
		Expect(desc.Has(sstable.ComponentData)).To(BeTrue())
		Expect(desc.Has(sstable.ComponentIndex)).To(BeTrue())
		Expect(desc.Has(sstable.ComponentSummary)).To(BeFalse())
		Expect(desc.Components()).To(HaveLen(3))

		path, ok := desc.Path(sstable.ComponentData)
		Expect(ok).To(BeTrue())
		Expect(path).To(Equal(filepath.Join(dir, "3-big-Data.db")))
	})

	It("should let the TOC manifest win", func() {
		write("1-big-Data.db", "x")
		write("1-big-Index.db", "x")
		write("1-big-Filter.db", "x")
		write("1-big-TOC.txt", "Data.db\nIndex.db\n")

		desc, err := sstable.Describe(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(desc.Has(sstable.ComponentIndex)).To(BeTrue())
		Expect(desc.Has(sstable.ComponentFilter)).To(BeFalse())
	})

	It("should reject mixed generations", func() {
		write("1-big-Data.db", "x")
		write("2-big-Index.db", "x")

		_, err := sstable.Describe(dir)
		Expect(err).To(MatchError(ContainSubstring("mixed generations")))
	})

	It("should require Data.db", func() {
		write("1-big-Index.db", "x")

		_, err := sstable.Describe(dir)
		Expect(err).To(MatchError(ContainSubstring("Data.db")))
	})
})

var _ = Describe("ParseTOC", func() {
	It("should list one component per line", func() {
		Expect(sstable.ParseTOC([]byte("Data.db\n\n  Index.db  \nTOC.txt\n"))).
			To(Equal([]string{"Data.db", "Index.db", "TOC.txt"}))
		Expect(sstable.ParseTOC(nil)).To(BeEmpty())
	})
})
