package sstable

import "fmt"

// Complex value codec for the Cassandra 5+ tuple-style framing. Decoding is
// driven entirely by a resolved TypeDesc; no type information is read from
// the wire.
//
// Layouts (all counts and lengths are vints):
//
//	list/set := count (elemLen elemBytes)*          elemLen >= 0
//	map      := count (keyLen key valLen val)*
//	tuple    := (fieldLen fieldBytes | -1)*         arity from schema, -1 = null
//	udt      := same as tuple, field order from the registry
//	frozen   := inner encoding, unchanged
//
// UDTs decode leniently: fewer physical fields than the schema defines
// yields nulls for the tail (the count is recorded on the Value), and
// trailing bytes beyond the schema's arity are tolerated.

// DecodeValue decodes one value of type t from the head of p and returns
// it along with the number of bytes consumed.
func DecodeValue(p []byte, t *TypeDesc) (Value, int, error) {
	return decodeValue(p, t, 0, defaultMaxDepth)
}

const defaultMaxDepth = 32

func decodeValue(p []byte, t *TypeDesc, depth, maxDepth int) (Value, int, error) {
	if depth >= maxDepth {
		return Null, 0, ErrExcessiveNesting
	}

	switch t.Kind {
	case KindList, KindSet:
		return decodeListish(p, t, depth, maxDepth)
	case KindMap:
		return decodeMap(p, t, depth, maxDepth)
	case KindTuple:
		return decodeTuple(p, t, depth, maxDepth)
	case KindUDT:
		return decodeUDT(p, t, depth, maxDepth)
	}

	v, n, err := decodePrimitive(p, t.Kind)
	if err != nil {
		return Null, 0, err
	}
	v.Frozen = t.Frozen
	return v, n, nil
}

func decodeListish(p []byte, t *TypeDesc, depth, maxDepth int) (Value, int, error) {
	count, pos, err := decodeCount(p)
	if err != nil {
		return Null, 0, err
	}

	elems := make([]Value, 0, count)
	for i := 0; i < count; i++ {
		sub, n, err := decodeFrame(p[pos:])
		if err != nil {
			return Null, 0, err
		}
		if sub == nil {
			return Null, 0, fmt.Errorf("sstable: null element %d in %s", i, t.Kind)
		}
		elem, m, err := decodeValue(sub, t.Elem, depth+1, maxDepth)
		if err != nil {
			return Null, 0, err
		}
		if m != len(sub) {
			return Null, 0, fmt.Errorf("sstable: element %d of %s decoded %d of %d bytes", i, t.Kind, m, len(sub))
		}
		elems = append(elems, elem)
		pos += n
	}

	// the reader never re-deduplicates a set; order and content are the
	// writer's responsibility
	return Value{Kind: t.Kind, Elems: elems, Frozen: t.Frozen}, pos, nil
}

func decodeMap(p []byte, t *TypeDesc, depth, maxDepth int) (Value, int, error) {
	count, pos, err := decodeCount(p)
	if err != nil {
		return Null, 0, err
	}

	entries := make([]MapEntry, 0, count)
	for i := 0; i < count; i++ {
		sub, n, err := decodeFrame(p[pos:])
		if err != nil {
			return Null, 0, err
		}
		if sub == nil {
			return Null, 0, fmt.Errorf("sstable: null key in map entry %d", i)
		}
		key, _, err := decodeValue(sub, t.Key, depth+1, maxDepth)
		if err != nil {
			return Null, 0, err
		}
		pos += n

		sub, n, err = decodeFrame(p[pos:])
		if err != nil {
			return Null, 0, err
		}
		if sub == nil {
			return Null, 0, fmt.Errorf("sstable: null value in map entry %d", i)
		}
		val, _, err := decodeValue(sub, t.Value, depth+1, maxDepth)
		if err != nil {
			return Null, 0, err
		}
		pos += n

		// encoded order is preserved; keys are not required to be sorted
		entries = append(entries, MapEntry{Key: key, Value: val})
	}

	return Value{Kind: KindMap, Entries: entries, Frozen: t.Frozen}, pos, nil
}

func decodeTuple(p []byte, t *TypeDesc, depth, maxDepth int) (Value, int, error) {
	elems := make([]Value, 0, len(t.Fields))
	pos := 0
	for i, f := range t.Fields {
		sub, n, err := decodeFrame(p[pos:])
		if err != nil {
			return Null, 0, fmt.Errorf("sstable: tuple field %d: %w", i, err)
		}
		pos += n
		if sub == nil {
			elems = append(elems, Null)
			continue
		}
		elem, _, err := decodeValue(sub, f.Type, depth+1, maxDepth)
		if err != nil {
			return Null, 0, err
		}
		elems = append(elems, elem)
	}
	return Value{Kind: KindTuple, Elems: elems, Frozen: t.Frozen}, pos, nil
}

func decodeUDT(p []byte, t *TypeDesc, depth, maxDepth int) (Value, int, error) {
	v := Value{
		Kind:   KindUDT,
		Name:   t.Name,
		Frozen: t.Frozen,
		Elems:  make([]Value, 0, len(t.Fields)),
		Fields: make([]string, 0, len(t.Fields)),
	}

	pos := 0
	for _, f := range t.Fields {
		if pos == len(p) {
			// schema evolution: fields added after this value was written
			// decode as nulls
			v.Elems = append(v.Elems, Null)
			v.Fields = append(v.Fields, f.Name)
			v.MissingFields++
			continue
		}

		sub, n, err := decodeFrame(p[pos:])
		if err != nil {
			return Null, 0, fmt.Errorf("sstable: udt %s field %s: %w", t.Name, f.Name, err)
		}
		pos += n
		if sub == nil {
			v.Elems = append(v.Elems, Null)
			v.Fields = append(v.Fields, f.Name)
			continue
		}

		elem, _, err := decodeValue(sub, f.Type, depth+1, maxDepth)
		if err != nil {
			return Null, 0, err
		}
		v.Elems = append(v.Elems, elem)
		v.Fields = append(v.Fields, f.Name)
	}

	// trailing bytes past the schema's known arity are tolerated for
	// forward compatibility and reported as consumed
	return v, len(p), nil
}

// decodeCount reads a non-negative collection count.
func decodeCount(p []byte) (int, int, error) {
	u, n, err := DecodeUVInt(p)
	if err != nil {
		return 0, 0, err
	}
	if u > uint64(len(p)) {
		// a count can never exceed the remaining bytes; cheap corruption check
		return 0, 0, fmt.Errorf("sstable: implausible collection count %d", u)
	}
	return int(u), n, nil
}

// decodeFrame reads one length-prefixed frame. A length of -1 yields a nil
// slice (null); any other negative length is corrupt.
func decodeFrame(p []byte) ([]byte, int, error) {
	l, n, err := DecodeVInt(p)
	if err != nil {
		return nil, 0, err
	}
	if l == -1 {
		return nil, n, nil
	}
	if l < 0 {
		return nil, 0, fmt.Errorf("sstable: invalid frame length %d", l)
	}
	if l > int64(len(p)-n) {
		return nil, 0, errTruncated
	}
	return p[n : n+int(l)], n + int(l), nil
}

// --------------------------------------------------------------------

// AppendValue appends the canonical encoding of v as type t to dst. It is
// the exact inverse of DecodeValue and exists for tooling and tests; this
// package never writes SSTables.
func AppendValue(dst []byte, v Value, t *TypeDesc) ([]byte, error) {
	if v.IsNull() {
		return nil, fmt.Errorf("sstable: cannot encode a bare null; nulls are framed by their container")
	}

	switch t.Kind {
	case KindList, KindSet:
		dst = AppendUVInt(dst, uint64(len(v.Elems)))
		for _, elem := range v.Elems {
			b, err := AppendValue(nil, elem, t.Elem)
			if err != nil {
				return nil, err
			}
			dst = AppendVInt(dst, int64(len(b)))
			dst = append(dst, b...)
		}
		return dst, nil

	case KindMap:
		dst = AppendUVInt(dst, uint64(len(v.Entries)))
		for _, e := range v.Entries {
			kb, err := AppendValue(nil, e.Key, t.Key)
			if err != nil {
				return nil, err
			}
			vb, err := AppendValue(nil, e.Value, t.Value)
			if err != nil {
				return nil, err
			}
			dst = AppendVInt(dst, int64(len(kb)))
			dst = append(dst, kb...)
			dst = AppendVInt(dst, int64(len(vb)))
			dst = append(dst, vb...)
		}
		return dst, nil

	case KindTuple, KindUDT:
		if len(v.Elems) > len(t.Fields) {
			return nil, fmt.Errorf("sstable: %s has %d fields, value carries %d", t, len(t.Fields), len(v.Elems))
		}
		for i, elem := range v.Elems {
			if elem.IsNull() {
				dst = AppendVInt(dst, -1)
				continue
			}
			b, err := AppendValue(nil, elem, t.Fields[i].Type)
			if err != nil {
				return nil, err
			}
			dst = AppendVInt(dst, int64(len(b)))
			dst = append(dst, b...)
		}
		return dst, nil
	}

	return appendPrimitive(dst, v, t.Kind)
}
