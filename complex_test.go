package sstable_test

import (
	"math/big"
	"strconv"

	"github.com/cqlkit/sstable"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// typeOf resolves a CQL type string against a one-column throwaway schema.
func typeOf(dt string) *sstable.TypeDesc {
	schema, err := sstable.ParseSchema([]byte(`{
		"table_name": "t",
		"columns": [
			{"name": "id", "data_type": "int"},
			{"name": "v", "data_type": ` + strconv.Quote(dt) + `}
		],
		"primary_key": [["id"]],
		"udts": {
			"address": [
				{"name": "street", "data_type": "text"},
				{"name": "zip", "data_type": "int"}
			]
		}
	}`))
	Expect(err).NotTo(HaveOccurred())
	col, _ := schema.Column("v")
	return col.Type()
}

func roundTrip(v sstable.Value, t *sstable.TypeDesc) sstable.Value {
	buf, err := sstable.AppendValue(nil, v, t)
	Expect(err).NotTo(HaveOccurred())

	out, n, err := sstable.DecodeValue(buf, t)
	Expect(err).NotTo(HaveOccurred())
	Expect(n).To(Equal(len(buf)))
	return out
}

var _ = Describe("DecodeValue", func() {
	It("should round-trip primitives", func() {
		Expect(roundTrip(sstable.Value{Kind: sstable.KindBoolean, Bool: true}, typeOf("boolean")).Bool).To(BeTrue())
		Expect(roundTrip(sstable.Value{Kind: sstable.KindTinyInt, Int: -3}, typeOf("tinyint")).Int).To(Equal(int64(-3)))
		Expect(roundTrip(sstable.Value{Kind: sstable.KindSmallInt, Int: -1000}, typeOf("smallint")).Int).To(Equal(int64(-1000)))
		Expect(roundTrip(intV(-70000), typeOf("int")).Int).To(Equal(int64(-70000)))
		Expect(roundTrip(bigintV(1<<40), typeOf("bigint")).Int).To(Equal(int64(1) << 40))
		Expect(roundTrip(sstable.Value{Kind: sstable.KindDouble, Float: 3.25}, typeOf("double")).Float).To(Equal(3.25))
		Expect(roundTrip(textV("héllo"), typeOf("text")).Text).To(Equal("héllo"))
		Expect(roundTrip(sstable.Value{Kind: sstable.KindBlob, Bytes: []byte{0, 1, 2}}, typeOf("blob")).Bytes).To(Equal([]byte{0, 1, 2}))

		id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
		Expect(roundTrip(sstable.Value{Kind: sstable.KindUUID, UUID: id}, typeOf("uuid")).UUID).To(Equal(id))

		// dates are stored biased around the epoch; negative day counts survive
		Expect(roundTrip(sstable.Value{Kind: sstable.KindDate, Int: -719162}, typeOf("date")).Int).To(Equal(int64(-719162)))
	})

	It("should round-trip arbitrary-precision numerics", func() {
		z, _ := new(big.Int).SetString("-123456789012345678901234567890", 10)
		out := roundTrip(sstable.Value{Kind: sstable.KindVarint, Big: z}, typeOf("varint"))
		Expect(out.Big.String()).To(Equal(z.String()))

		out = roundTrip(sstable.Value{Kind: sstable.KindDecimal, Big: big.NewInt(-314159), Scale: 5}, typeOf("decimal"))
		Expect(out.Big.Int64()).To(Equal(int64(-314159)))
		Expect(out.Scale).To(Equal(int32(5)))

		out = roundTrip(sstable.Value{Kind: sstable.KindDuration, Months: 1, Days: -2, Nanos: 3_600_000_000_000}, typeOf("duration"))
		Expect(out.Months).To(Equal(int32(1)))
		Expect(out.Days).To(Equal(int32(-2)))
		Expect(out.Nanos).To(Equal(int64(3_600_000_000_000)))
	})

	It("should validate text and inet encodings", func() {
		t := typeOf("text")
		_, _, err := sstable.DecodeValue([]byte{2, 0xff, 0xfe}, t)
		Expect(err).To(MatchError(sstable.ErrInvalidEncoding))

		t = typeOf("ascii")
		_, _, err = sstable.DecodeValue([]byte{2, 'h', 0x80}, t)
		Expect(err).To(MatchError(sstable.ErrInvalidEncoding))

		t = typeOf("inet")
		_, _, err = sstable.DecodeValue([]byte{3, 1, 2, 3}, t)
		Expect(err).To(MatchError(ContainSubstring("inet address must be 4 or 16 bytes")))
	})

	It("should round-trip lists and sets", func() {
		out := roundTrip(listV(intV(1), intV(2), intV(3)), typeOf("list<int>"))
		Expect(out.Kind).To(Equal(sstable.KindList))
		Expect(out.Elems).To(HaveLen(3))
		Expect(out.Elems[2].Int).To(Equal(int64(3)))

		out = roundTrip(sstable.Value{Kind: sstable.KindSet, Elems: []sstable.Value{textV("a"), textV("b")}}, typeOf("set<text>"))
		Expect(out.Elems).To(HaveLen(2))
		Expect(out.Elems[0].Text).To(Equal("a"))
	})

	It("should preserve map entry order", func() {
		in := sstable.Value{Kind: sstable.KindMap, Entries: []sstable.MapEntry{
			{Key: textV("zz"), Value: intV(1)},
			{Key: textV("aa"), Value: intV(2)},
		}}
		out := roundTrip(in, typeOf("map<text,int>"))
		Expect(out.Entries).To(HaveLen(2))
		Expect(out.Entries[0].Key.Text).To(Equal("zz"))
		Expect(out.Entries[1].Value.Int).To(Equal(int64(2)))
	})

	It("should decode deeply structured values", func() {
		t := typeOf("map<text,list<frozen<tuple<int,text>>>>")
		in := sstable.Value{Kind: sstable.KindMap, Entries: []sstable.MapEntry{
			{
				Key: textV("pairs"),
				Value: listV(
					sstable.Value{Kind: sstable.KindTuple, Elems: []sstable.Value{intV(1), textV("one")}},
					sstable.Value{Kind: sstable.KindTuple, Elems: []sstable.Value{intV(2), sstable.Null}},
				),
			},
		}}

		out := roundTrip(in, t)
		pairs := out.Entries[0].Value
		Expect(pairs.Elems).To(HaveLen(2))
		Expect(pairs.Elems[0].Elems[1].Text).To(Equal("one"))
		Expect(pairs.Elems[1].Elems[0].Int).To(Equal(int64(2)))
		Expect(pairs.Elems[1].Elems[1].IsNull()).To(BeTrue())
	})

	It("should reject null collection elements", func() {
		t := typeOf("list<int>")
		buf := sstable.AppendUVInt(nil, 1)
		buf = sstable.AppendVInt(buf, -1)

		_, _, err := sstable.DecodeValue(buf, t)
		Expect(err).To(MatchError(ContainSubstring("null element")))
	})

	It("should reject implausible collection counts", func() {
		t := typeOf("list<int>")
		_, _, err := sstable.DecodeValue(sstable.AppendUVInt(nil, 1<<40), t)
		Expect(err).To(MatchError(ContainSubstring("implausible collection count")))
	})

	Describe("UDT", func() {
		It("should decode by field name", func() {
			t := typeOf("frozen<address>")
			in := sstable.Value{Kind: sstable.KindUDT, Elems: []sstable.Value{textV("main st"), intV(10115)}}

			out := roundTrip(in, t)
			Expect(out.Name).To(Equal("address"))
			Expect(out.Fields).To(Equal([]string{"street", "zip"}))

			street, ok := out.Field("street")
			Expect(ok).To(BeTrue())
			Expect(street.Text).To(Equal("main st"))
		})

		It("should null-fill missing trailing fields", func() {
			t := typeOf("frozen<address>")
			in := sstable.Value{Kind: sstable.KindUDT, Elems: []sstable.Value{textV("main st")}}
			buf, err := sstable.AppendValue(nil, in, t)
			Expect(err).NotTo(HaveOccurred())

			out, n, err := sstable.DecodeValue(buf, t)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(len(buf)))
			Expect(out.MissingFields).To(Equal(1))
			Expect(out.Elems[1].IsNull()).To(BeTrue())

			zip, ok := out.Field("zip")
			Expect(ok).To(BeTrue())
			Expect(zip.IsNull()).To(BeTrue())
		})

		It("should tolerate trailing fields past the known arity", func() {
			t := typeOf("frozen<address>")
			in := sstable.Value{Kind: sstable.KindUDT, Elems: []sstable.Value{textV("main st"), intV(10115)}}
			buf, err := sstable.AppendValue(nil, in, t)
			Expect(err).NotTo(HaveOccurred())

			// a third field written by a newer schema
			buf = sstable.AppendVInt(buf, 1)
			buf = append(buf, 0x01)

			out, n, err := sstable.DecodeValue(buf, t)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(len(buf)))
			Expect(out.Elems).To(HaveLen(2))
			Expect(out.MissingFields).To(Equal(0))
		})
	})

	It("should stop at the nesting depth limit", func() {
		t := &sstable.TypeDesc{Kind: sstable.KindInt}
		v := intV(7)
		for i := 0; i < 40; i++ {
			t = &sstable.TypeDesc{Kind: sstable.KindList, Elem: t}
			v = listV(v)
		}
		buf, err := sstable.AppendValue(nil, v, t)
		Expect(err).NotTo(HaveOccurred())

		_, _, err = sstable.DecodeValue(buf, t)
		Expect(err).To(MatchError(sstable.ErrExcessiveNesting))
	})
})
