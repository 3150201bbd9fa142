package sstable_test

import (
	"strings"

	"github.com/cqlkit/sstable"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("TableSchema", func() {
	It("should parse and resolve", func() {
		schema := testSchema()
		Expect(schema.TableName).To(Equal("events"))

		pk := schema.PartitionKeyColumns()
		Expect(pk).To(HaveLen(1))
		Expect(pk[0].Name).To(Equal("id"))
		Expect(pk[0].Type().Kind).To(Equal(sstable.KindBigInt))

		cc := schema.ClusteringColumns()
		Expect(cc).To(HaveLen(1))
		Expect(cc[0].Name).To(Equal("seq"))

		col, ok := schema.Column("tags")
		Expect(ok).To(BeTrue())
		Expect(col.Type().Kind).To(Equal(sstable.KindList))
		Expect(col.Type().Elem.Kind).To(Equal(sstable.KindText))

		col, ok = schema.Column("note")
		Expect(ok).To(BeTrue())
		Expect(col.Static).To(BeTrue())
	})

	It("should resolve UDT references", func() {
		schema := testSchema()

		col, ok := schema.Column("owner")
		Expect(ok).To(BeTrue())
		Expect(col.Type().Kind).To(Equal(sstable.KindUDT))
		Expect(col.Type().Frozen).To(BeTrue())
		Expect(col.Type().Name).To(Equal("address"))
		Expect(col.Type().Fields).To(HaveLen(2))
		Expect(col.Type().Fields[0].Name).To(Equal("street"))

		udt, ok := schema.UDT("address")
		Expect(ok).To(BeTrue())
		Expect(udt.Fields[1].Type.Kind).To(Equal(sstable.KindInt))
	})

	It("should parse the type grammar", func() {
		raw := strings.Replace(testSchemaJSON,
			`{"name": "tags", "data_type": "list<text>"}`,
			`{"name": "tags", "data_type": "map< text , list<frozen<tuple<int,text>>> >"}`, 1)
		schema, err := sstable.ParseSchema([]byte(raw))
		Expect(err).NotTo(HaveOccurred())

		col, _ := schema.Column("tags")
		t := col.Type()
		Expect(t.Kind).To(Equal(sstable.KindMap))
		Expect(t.Key.Kind).To(Equal(sstable.KindText))
		Expect(t.Value.Kind).To(Equal(sstable.KindList))
		Expect(t.Value.Elem.Kind).To(Equal(sstable.KindTuple))
		Expect(t.Value.Elem.Frozen).To(BeTrue())
		Expect(t.Value.Elem.Fields).To(HaveLen(2))
		Expect(t.String()).To(Equal("map<text,list<frozen<tuple<int,text>>>>"))
	})

	It("should fail on unresolved UDT references", func() {
		raw := strings.Replace(testSchemaJSON, `"frozen<address>"`, `"frozen<location>"`, 1)
		_, err := sstable.ParseSchema([]byte(raw))

		var serr *sstable.SchemaError
		Expect(err).To(BeAssignableToTypeOf(serr))
		Expect(err.Error()).To(ContainSubstring("unresolved UDT reference"))
	})

	It("should fail on recursive UDT definitions", func() {
		_, err := sstable.ParseSchema([]byte(`{
			"table_name": "t",
			"columns": [
				{"name": "id", "data_type": "int"},
				{"name": "v", "data_type": "frozen<a>"}
			],
			"primary_key": [["id"]],
			"udts": {
				"a": [{"name": "b", "data_type": "frozen<b>"}],
				"b": [{"name": "a", "data_type": "frozen<a>"}]
			}
		}`))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("recursive UDT definition"))
	})

	It("should fail on malformed definitions", func() {
		_, err := sstable.ParseSchema([]byte(`{"columns": []}`))
		Expect(err).To(MatchError(ContainSubstring("missing table_name")))

		_, err = sstable.ParseSchema([]byte(`{
			"table_name": "t",
			"columns": [{"name": "id", "data_type": "int"}],
			"primary_key": [["nope"]]
		}`))
		Expect(err).To(MatchError(ContainSubstring("partition key column not defined")))

		_, err = sstable.ParseSchema([]byte(`{
			"table_name": "t",
			"columns": [{"name": "id", "data_type": "list<"}],
			"primary_key": [["id"]]
		}`))
		Expect(err).To(HaveOccurred())
	})

	It("should encode and expose partition keys", func() {
		schema := testSchema()

		key, err := schema.AppendPartitionKey(nil, bigintV(42))
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal([]byte{0, 0, 0, 0, 0, 0, 0, 42}))

		_, err = schema.AppendPartitionKey(nil, bigintV(1), intV(2))
		Expect(err).To(MatchError(ContainSubstring("partition key has 1 columns")))
	})
})
