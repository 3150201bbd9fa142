package sstable

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// TypeDesc is a fully resolved CQL type descriptor. Column and UDT types
// are resolved recursively at schema load time, so decoding never consults
// a registry.
type TypeDesc struct {
	Kind   Kind
	Frozen bool

	Elem   *TypeDesc   // List, Set element
	Key    *TypeDesc   // Map key
	Value  *TypeDesc   // Map value
	Fields []FieldDesc // Tuple (unnamed), UDT (named)
	Name   string      // UDT type name
}

// FieldDesc is one field of a tuple or UDT type.
type FieldDesc struct {
	Name string
	Type *TypeDesc
}

func (t *TypeDesc) String() string {
	var s string
	switch t.Kind {
	case KindList:
		s = fmt.Sprintf("list<%s>", t.Elem)
	case KindSet:
		s = fmt.Sprintf("set<%s>", t.Elem)
	case KindMap:
		s = fmt.Sprintf("map<%s,%s>", t.Key, t.Value)
	case KindTuple:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Type.String()
		}
		s = fmt.Sprintf("tuple<%s>", strings.Join(parts, ","))
	case KindUDT:
		s = t.Name
	default:
		s = t.Kind.String()
	}
	if t.Frozen {
		return fmt.Sprintf("frozen<%s>", s)
	}
	return s
}

var primitiveKinds = map[string]Kind{
	"ascii":     KindAscii,
	"bigint":    KindBigInt,
	"blob":      KindBlob,
	"boolean":   KindBoolean,
	"counter":   KindCounter,
	"date":      KindDate,
	"decimal":   KindDecimal,
	"double":    KindDouble,
	"duration":  KindDuration,
	"float":     KindFloat,
	"inet":      KindInet,
	"int":       KindInt,
	"smallint":  KindSmallInt,
	"text":      KindText,
	"time":      KindTime,
	"timestamp": KindTimestamp,
	"timeuuid":  KindTimeUUID,
	"tinyint":   KindTinyInt,
	"uuid":      KindUUID,
	"varchar":   KindText,
	"varint":    KindVarint,
}

// --------------------------------------------------------------------

// ColumnDef is a single column definition.
type ColumnDef struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Static   bool   `json:"static,omitempty"`

	typ *TypeDesc
}

// Type returns the resolved type descriptor of the column.
func (c *ColumnDef) Type() *TypeDesc { return c.typ }

// UDTFieldDef is a single field of a user-defined type definition.
type UDTFieldDef struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// TableSchema describes the table an SSTable belongs to. It is loaded once,
// resolved recursively, and never mutated afterwards; concurrent readers
// may share one instance freely.
type TableSchema struct {
	TableName  string                   `json:"table_name"`
	Columns    []ColumnDef              `json:"columns"`
	PrimaryKey [][]string               `json:"primary_key"`
	UDTs       map[string][]UDTFieldDef `json:"udts,omitempty"`

	partitionKey []int // indices into Columns
	clustering   []int
	byName       map[string]int
	udts         map[string]*TypeDesc
}

// LoadSchema reads and resolves a JSON table schema.
func LoadSchema(r io.Reader) (*TableSchema, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseSchema(data)
}

// ParseSchema parses and resolves a JSON table schema. Every data_type
// string, including those inside the UDT registry, must resolve; an
// unresolved type reference fails here with a SchemaError, never later
// during decode.
func ParseSchema(data []byte) (*TableSchema, error) {
	s := new(TableSchema)
	if err := json.Unmarshal(data, s); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := s.resolve(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TableSchema) resolve() error {
	if s.TableName == "" {
		return &SchemaError{Reason: "missing table_name"}
	}
	if len(s.Columns) == 0 {
		return &SchemaError{Table: s.TableName, Reason: "no columns"}
	}

	// resolve the UDT registry first, tolerating forward references
	s.udts = make(map[string]*TypeDesc, len(s.UDTs))
	for name := range s.UDTs {
		if _, err := s.resolveUDT(name, nil); err != nil {
			return err
		}
	}

	s.byName = make(map[string]int, len(s.Columns))
	for i := range s.Columns {
		col := &s.Columns[i]
		if _, dup := s.byName[col.Name]; dup {
			return &SchemaError{Table: s.TableName, Name: col.Name, Reason: "duplicate column"}
		}
		s.byName[col.Name] = i

		typ, err := s.parseType(col.DataType)
		if err != nil {
			return &SchemaError{Table: s.TableName, Name: col.Name, Reason: err.Error()}
		}
		col.typ = typ
	}

	if len(s.PrimaryKey) == 0 || len(s.PrimaryKey[0]) == 0 {
		return &SchemaError{Table: s.TableName, Reason: "missing partition key"}
	}
	for _, name := range s.PrimaryKey[0] {
		i, ok := s.byName[name]
		if !ok {
			return &SchemaError{Table: s.TableName, Name: name, Reason: "partition key column not defined"}
		}
		s.partitionKey = append(s.partitionKey, i)
	}
	if len(s.PrimaryKey) > 1 {
		for _, name := range s.PrimaryKey[1] {
			i, ok := s.byName[name]
			if !ok {
				return &SchemaError{Table: s.TableName, Name: name, Reason: "clustering column not defined"}
			}
			s.clustering = append(s.clustering, i)
		}
	}
	return nil
}

func (s *TableSchema) resolveUDT(name string, path []string) (*TypeDesc, error) {
	for _, seen := range path {
		if seen == name {
			return nil, &SchemaError{Table: s.TableName, Name: name, Reason: "recursive UDT definition"}
		}
	}
	if t, ok := s.udts[name]; ok {
		return t, nil
	}

	fields, ok := s.UDTs[name]
	if !ok {
		return nil, &SchemaError{Table: s.TableName, Name: name, Reason: "unresolved UDT reference"}
	}

	t := &TypeDesc{Kind: KindUDT, Name: name}
	for _, f := range fields {
		ft, err := s.parseTypeIn(f.DataType, append(path, name))
		if err != nil {
			return nil, &SchemaError{Table: s.TableName, Name: name + "." + f.Name, Reason: err.Error()}
		}
		t.Fields = append(t.Fields, FieldDesc{Name: f.Name, Type: ft})
	}
	s.udts[name] = t
	return t, nil
}

// Column returns the definition of the named column.
func (s *TableSchema) Column(name string) (*ColumnDef, bool) {
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return &s.Columns[i], true
}

// PartitionKeyColumns returns the partition key columns in declared order.
func (s *TableSchema) PartitionKeyColumns() []*ColumnDef {
	return s.columnsAt(s.partitionKey)
}

// ClusteringColumns returns the clustering columns in declared order.
func (s *TableSchema) ClusteringColumns() []*ColumnDef {
	return s.columnsAt(s.clustering)
}

func (s *TableSchema) columnsAt(idx []int) []*ColumnDef {
	cols := make([]*ColumnDef, len(idx))
	for i, n := range idx {
		cols[i] = &s.Columns[n]
	}
	return cols
}

// UDT returns the resolved descriptor of a registered user-defined type.
func (s *TableSchema) UDT(name string) (*TypeDesc, bool) {
	t, ok := s.udts[name]
	return t, ok
}

func (s *TableSchema) isKeyColumn(i int) bool {
	for _, n := range s.partitionKey {
		if n == i {
			return true
		}
	}
	for _, n := range s.clustering {
		if n == i {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------

// AppendPartitionKey encodes typed partition key values into the raw key
// bytes stored in Data.db, Index.db and Filter.db: the bare value encoding
// for a single-column key, uvint-framed components for a composite one.
func (s *TableSchema) AppendPartitionKey(dst []byte, vals ...Value) ([]byte, error) {
	if len(vals) != len(s.partitionKey) {
		return nil, &SchemaError{
			Table:  s.TableName,
			Reason: fmt.Sprintf("partition key has %d columns, got %d values", len(s.partitionKey), len(vals)),
		}
	}
	if len(vals) == 1 {
		return AppendValue(dst, vals[0], s.Columns[s.partitionKey[0]].typ)
	}
	for i, v := range vals {
		sub, err := AppendValue(nil, v, s.Columns[s.partitionKey[i]].typ)
		if err != nil {
			return nil, err
		}
		dst = AppendUVInt(dst, uint64(len(sub)))
		dst = append(dst, sub...)
	}
	return dst, nil
}

// decodePartitionKey is the inverse of AppendPartitionKey; a composite key
// decodes as a tuple of its components.
func (s *TableSchema) decodePartitionKey(raw []byte) (Value, error) {
	if len(s.partitionKey) == 1 {
		v, n, err := DecodeValue(raw, s.Columns[s.partitionKey[0]].typ)
		if err != nil {
			return Null, err
		}
		if n != len(raw) {
			return Null, fmt.Errorf("sstable: %d trailing bytes after partition key", len(raw)-n)
		}
		return v, nil
	}

	out := Value{Kind: KindTuple, Elems: make([]Value, 0, len(s.partitionKey))}
	pos := 0
	for _, i := range s.partitionKey {
		sub, n, err := decodeBytes(raw[pos:])
		if err != nil {
			return Null, err
		}
		pos += n
		v, m, err := DecodeValue(sub, s.Columns[i].typ)
		if err != nil {
			return Null, err
		}
		if m != len(sub) {
			return Null, fmt.Errorf("sstable: %d trailing bytes in partition key component %q", len(sub)-m, s.Columns[i].Name)
		}
		out.Elems = append(out.Elems, v)
	}
	if pos != len(raw) {
		return Null, fmt.Errorf("sstable: %d trailing bytes after partition key", len(raw)-pos)
	}
	return out, nil
}

// --------------------------------------------------------------------

// parseType parses a CQL type grammar string, e.g. "map<text,frozen<address>>".
func (s *TableSchema) parseType(src string) (*TypeDesc, error) {
	return s.parseTypeIn(src, nil)
}

func (s *TableSchema) parseTypeIn(src string, path []string) (*TypeDesc, error) {
	p := &typeParser{src: src, schema: s, path: path}
	t, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("trailing input in type %q", src)
	}
	return t, nil
}

type typeParser struct {
	src    string
	pos    int
	schema *TableSchema
	path   []string
}

func (p *typeParser) parse() (*TypeDesc, error) {
	name := strings.ToLower(p.ident())
	if name == "" {
		return nil, fmt.Errorf("empty type in %q", p.src)
	}

	switch name {
	case "frozen":
		inner, err := p.args(1)
		if err != nil {
			return nil, err
		}
		t := *inner[0]
		t.Frozen = true
		return &t, nil
	case "list", "set":
		inner, err := p.args(1)
		if err != nil {
			return nil, err
		}
		k := KindList
		if name == "set" {
			k = KindSet
		}
		return &TypeDesc{Kind: k, Elem: inner[0]}, nil
	case "map":
		inner, err := p.args(2)
		if err != nil {
			return nil, err
		}
		return &TypeDesc{Kind: KindMap, Key: inner[0], Value: inner[1]}, nil
	case "tuple":
		inner, err := p.args(-1)
		if err != nil {
			return nil, err
		}
		t := &TypeDesc{Kind: KindTuple}
		for _, it := range inner {
			t.Fields = append(t.Fields, FieldDesc{Type: it})
		}
		return t, nil
	}

	if k, ok := primitiveKinds[name]; ok {
		return &TypeDesc{Kind: k}, nil
	}
	return p.schema.resolveUDT(name, p.path)
}

// args parses "<t1, t2, ...>", requiring exactly n types when n >= 0.
func (p *typeParser) args(n int) ([]*TypeDesc, error) {
	if !p.expect('<') {
		return nil, fmt.Errorf("expected '<' at offset %d in %q", p.pos, p.src)
	}
	var out []*TypeDesc
	for {
		t, err := p.parse()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if p.expect(',') {
			continue
		}
		break
	}
	if !p.expect('>') {
		return nil, fmt.Errorf("expected '>' at offset %d in %q", p.pos, p.src)
	}
	if n >= 0 && len(out) != n {
		return nil, fmt.Errorf("expected %d type arguments, found %d in %q", n, len(out), p.src)
	}
	return out, nil
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '<' || c == '>' || c == ',' || c == ' ' || c == '\t' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) expect(c byte) bool {
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}
