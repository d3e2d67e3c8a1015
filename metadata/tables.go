package metadata

import (
	"math/bits"
	"strconv"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/metadata/internal/cursor"
)

// Table identifies a metadata table by its number in the table stream.
type Table uint8

const (
	TableModule                 Table = 0x00
	TableTypeRef                Table = 0x01
	TableTypeDef                Table = 0x02
	TableFieldPtr               Table = 0x03
	TableField                  Table = 0x04
	TableMethodPtr              Table = 0x05
	TableMethodDef              Table = 0x06
	TableParamPtr               Table = 0x07
	TableParam                  Table = 0x08
	TableInterfaceImpl          Table = 0x09
	TableMemberRef              Table = 0x0A
	TableConstant               Table = 0x0B
	TableCustomAttribute        Table = 0x0C
	TableFieldMarshal           Table = 0x0D
	TableDeclSecurity           Table = 0x0E
	TableClassLayout            Table = 0x0F
	TableFieldLayout            Table = 0x10
	TableStandAloneSig          Table = 0x11
	TableEventMap               Table = 0x12
	TableEventPtr               Table = 0x13
	TableEvent                  Table = 0x14
	TablePropertyMap            Table = 0x15
	TablePropertyPtr            Table = 0x16
	TableProperty               Table = 0x17
	TableMethodSemantics        Table = 0x18
	TableMethodImpl             Table = 0x19
	TableModuleRef              Table = 0x1A
	TableTypeSpec               Table = 0x1B
	TableImplMap                Table = 0x1C
	TableFieldRVA               Table = 0x1D
	TableEncLog                 Table = 0x1E
	TableEncMap                 Table = 0x1F
	TableAssembly               Table = 0x20
	TableAssemblyProcessor      Table = 0x21
	TableAssemblyOS             Table = 0x22
	TableAssemblyRef            Table = 0x23
	TableAssemblyRefProcessor   Table = 0x24
	TableAssemblyRefOS          Table = 0x25
	TableFile                   Table = 0x26
	TableExportedType           Table = 0x27
	TableManifestResource       Table = 0x28
	TableNestedClass            Table = 0x29
	TableGenericParam           Table = 0x2A
	TableMethodSpec             Table = 0x2B
	TableGenericParamConstraint Table = 0x2C

	tableCount = 0x2D
	noTable    = Table(0xFF)
)

var tableNames = [tableCount]string{
	"Module", "TypeRef", "TypeDef", "FieldPtr", "Field", "MethodPtr", "MethodDef",
	"ParamPtr", "Param", "InterfaceImpl", "MemberRef", "Constant", "CustomAttribute",
	"FieldMarshal", "DeclSecurity", "ClassLayout", "FieldLayout", "StandAloneSig",
	"EventMap", "EventPtr", "Event", "PropertyMap", "PropertyPtr", "Property",
	"MethodSemantics", "MethodImpl", "ModuleRef", "TypeSpec", "ImplMap", "FieldRVA",
	"EncLog", "EncMap", "Assembly", "AssemblyProcessor", "AssemblyOS", "AssemblyRef",
	"AssemblyRefProcessor", "AssemblyRefOS", "File", "ExportedType", "ManifestResource",
	"NestedClass", "GenericParam", "MethodSpec", "GenericParamConstraint",
}

func (t Table) String() string {
	if t < tableCount {
		return tableNames[t]
	}
	return "Table(0x" + strconv.FormatUint(uint64(t), 16) + ")"
}

// CodedIndex identifies a coded index family.
type CodedIndex uint8

const (
	CodedTypeDefOrRef CodedIndex = iota
	CodedHasConstant
	CodedHasCustomAttribute
	CodedHasFieldMarshal
	CodedHasDeclSecurity
	CodedMemberRefParent
	CodedHasSemantics
	CodedMethodDefOrRef
	CodedMemberForwarded
	CodedImplementation
	CodedCustomAttributeType
	CodedResolutionScope
	CodedTypeOrMethodDef
)

type codedInfo struct {
	name   string
	bits   uint
	tables []Table
}

var codedIndexes = [...]codedInfo{
	CodedTypeDefOrRef: {"TypeDefOrRef", 2, []Table{TableTypeDef, TableTypeRef, TableTypeSpec}},
	CodedHasConstant:  {"HasConstant", 2, []Table{TableField, TableParam, TableProperty}},
	CodedHasCustomAttribute: {"HasCustomAttribute", 5, []Table{
		TableMethodDef, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef, TableTypeSpec,
		TableAssembly, TableAssemblyRef, TableFile, TableExportedType,
		TableManifestResource, TableGenericParam, TableGenericParamConstraint,
		TableMethodSpec,
	}},
	CodedHasFieldMarshal:     {"HasFieldMarshal", 1, []Table{TableField, TableParam}},
	CodedHasDeclSecurity:     {"HasDeclSecurity", 2, []Table{TableTypeDef, TableMethodDef, TableAssembly}},
	CodedMemberRefParent:     {"MemberRefParent", 3, []Table{TableTypeDef, TableTypeRef, TableModuleRef, TableMethodDef, TableTypeSpec}},
	CodedHasSemantics:        {"HasSemantics", 1, []Table{TableEvent, TableProperty}},
	CodedMethodDefOrRef:      {"MethodDefOrRef", 1, []Table{TableMethodDef, TableMemberRef}},
	CodedMemberForwarded:     {"MemberForwarded", 1, []Table{TableField, TableMethodDef}},
	CodedImplementation:      {"Implementation", 2, []Table{TableFile, TableAssemblyRef, TableExportedType}},
	CodedCustomAttributeType: {"CustomAttributeType", 3, []Table{noTable, noTable, TableMethodDef, TableMemberRef, noTable}},
	CodedResolutionScope:     {"ResolutionScope", 2, []Table{TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef}},
	CodedTypeOrMethodDef:     {"TypeOrMethodDef", 1, []Table{TableTypeDef, TableMethodDef}},
}

func (c CodedIndex) String() string {
	if int(c) < len(codedIndexes) {
		return codedIndexes[c].name
	}
	return "CodedIndex(" + strconv.Itoa(int(c)) + ")"
}

// Encode packs a table row into a coded index value.
func (c CodedIndex) Encode(t Table, row uint32) (uint32, bool) {
	info := codedIndexes[c]
	for tag, ct := range info.tables {
		if ct == t {
			return row<<info.bits | uint32(tag), true
		}
	}
	return 0, false
}

// Decode splits a coded index value into its table and 1-based row.
// Row 0 is a null reference.
func (c CodedIndex) Decode(v uint32) (Table, uint32, error) {
	info := codedIndexes[c]
	tag := v & (1<<info.bits - 1)
	if int(tag) >= len(info.tables) || info.tables[tag] == noTable {
		return noTable, 0, errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
			Path(c.String()).
			Value(tag).
			Detail("invalid coded index tag").
			Build()
	}
	return info.tables[tag], v >> info.bits, nil
}

type colKind uint8

const (
	colU16 colKind = iota
	colU32
	colString
	colGUID
	colBlob
	colIndex
	colCoded
)

type column struct {
	kind  colKind
	table Table
	coded CodedIndex
}

var (
	u16 = column{kind: colU16}
	u32 = column{kind: colU32}
	str = column{kind: colString}
	gid = column{kind: colGUID}
	blb = column{kind: colBlob}
)

func idx(t Table) column        { return column{kind: colIndex, table: t} }
func coded(c CodedIndex) column { return column{kind: colCoded, coded: c} }

// schema lists the columns of every table, per ECMA-335 partition II.22.
// Constant.Type is a byte followed by a padding byte and is read as a u16.
var schema = [tableCount][]column{
	TableModule:                 {u16, str, gid, gid, gid},
	TableTypeRef:                {coded(CodedResolutionScope), str, str},
	TableTypeDef:                {u32, str, str, coded(CodedTypeDefOrRef), idx(TableField), idx(TableMethodDef)},
	TableFieldPtr:               {idx(TableField)},
	TableField:                  {u16, str, blb},
	TableMethodPtr:              {idx(TableMethodDef)},
	TableMethodDef:              {u32, u16, u16, str, blb, idx(TableParam)},
	TableParamPtr:               {idx(TableParam)},
	TableParam:                  {u16, u16, str},
	TableInterfaceImpl:          {idx(TableTypeDef), coded(CodedTypeDefOrRef)},
	TableMemberRef:              {coded(CodedMemberRefParent), str, blb},
	TableConstant:               {u16, coded(CodedHasConstant), blb},
	TableCustomAttribute:        {coded(CodedHasCustomAttribute), coded(CodedCustomAttributeType), blb},
	TableFieldMarshal:           {coded(CodedHasFieldMarshal), blb},
	TableDeclSecurity:           {u16, coded(CodedHasDeclSecurity), blb},
	TableClassLayout:            {u16, u32, idx(TableTypeDef)},
	TableFieldLayout:            {u32, idx(TableField)},
	TableStandAloneSig:          {blb},
	TableEventMap:               {idx(TableTypeDef), idx(TableEvent)},
	TableEventPtr:               {idx(TableEvent)},
	TableEvent:                  {u16, str, coded(CodedTypeDefOrRef)},
	TablePropertyMap:            {idx(TableTypeDef), idx(TableProperty)},
	TablePropertyPtr:            {idx(TableProperty)},
	TableProperty:               {u16, str, blb},
	TableMethodSemantics:        {u16, idx(TableMethodDef), coded(CodedHasSemantics)},
	TableMethodImpl:             {idx(TableTypeDef), coded(CodedMethodDefOrRef), coded(CodedMethodDefOrRef)},
	TableModuleRef:              {str},
	TableTypeSpec:               {blb},
	TableImplMap:                {u16, coded(CodedMemberForwarded), str, idx(TableModuleRef)},
	TableFieldRVA:               {u32, idx(TableField)},
	TableEncLog:                 {u32, u32},
	TableEncMap:                 {u32},
	TableAssembly:               {u32, u16, u16, u16, u16, u32, blb, str, str},
	TableAssemblyProcessor:      {u32},
	TableAssemblyOS:             {u32, u32, u32},
	TableAssemblyRef:            {u16, u16, u16, u16, u32, blb, str, str, blb},
	TableAssemblyRefProcessor:   {u32, idx(TableAssemblyRef)},
	TableAssemblyRefOS:          {u32, u32, u32, idx(TableAssemblyRef)},
	TableFile:                   {u32, str, blb},
	TableExportedType:           {u32, u32, str, str, coded(CodedImplementation)},
	TableManifestResource:       {u32, u32, str, coded(CodedImplementation)},
	TableNestedClass:            {idx(TableTypeDef), idx(TableTypeDef)},
	TableGenericParam:           {u16, u16, coded(CodedTypeOrMethodDef), str},
	TableMethodSpec:             {coded(CodedMethodDefOrRef), blb},
	TableGenericParamConstraint: {idx(TableGenericParam), coded(CodedTypeDefOrRef)},
}

// Heap size flags of the table stream header.
const (
	HeapStringsWide byte = 0x01
	HeapGUIDWide    byte = 0x02
	HeapBlobWide    byte = 0x04
	heapExtraData   byte = 0x40
)

// layout holds the row counts and heap widths that fix every column width.
type layout struct {
	rows      [tableCount]uint32
	heapSizes byte
}

func (l *layout) width(c column) int {
	switch c.kind {
	case colU16:
		return 2
	case colU32:
		return 4
	case colString:
		return l.heapWidth(HeapStringsWide)
	case colGUID:
		return l.heapWidth(HeapGUIDWide)
	case colBlob:
		return l.heapWidth(HeapBlobWide)
	case colIndex:
		if l.rows[c.table] < 1<<16 {
			return 2
		}
		return 4
	default:
		return l.codedWidth(c.coded)
	}
}

func (l *layout) heapWidth(flag byte) int {
	if l.heapSizes&flag != 0 {
		return 4
	}
	return 2
}

// codedWidth is 2 when every referenced table has fewer than 2^(16-tag bits) rows.
func (l *layout) codedWidth(c CodedIndex) int {
	info := codedIndexes[c]
	limit := uint32(1) << (16 - info.bits)
	for _, t := range info.tables {
		if t != noTable && l.rows[t] >= limit {
			return 4
		}
	}
	return 2
}

func (l *layout) rowSize(t Table) int {
	n := 0
	for _, c := range schema[t] {
		n += l.width(c)
	}
	return n
}

// tableStream is the decoded header of the #~ stream.
type tableStream struct {
	layout
	data    []byte
	offsets [tableCount]int
	sizes   [tableCount]int
	valid   uint64
	sorted  uint64
	major   uint8
	minor   uint8
}

func parseTableStream(data []byte) (*tableStream, error) {
	c := cursor.New(data)
	ts := &tableStream{data: data}
	if err := c.Skip(4); err != nil {
		return nil, err
	}
	var err error
	if ts.major, err = c.ReadByte(); err != nil {
		return nil, err
	}
	if ts.minor, err = c.ReadByte(); err != nil {
		return nil, err
	}
	if ts.heapSizes, err = c.ReadByte(); err != nil {
		return nil, err
	}
	if err := c.Skip(1); err != nil {
		return nil, err
	}
	if ts.valid, err = c.ReadU64(); err != nil {
		return nil, err
	}
	if ts.sorted, err = c.ReadU64(); err != nil {
		return nil, err
	}
	if hi := ts.valid >> tableCount; hi != 0 {
		return nil, errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Value(Table(tableCount + bits.TrailingZeros64(hi))).
			Detail("table without a known schema").
			Build()
	}
	for t := Table(0); t < tableCount; t++ {
		if ts.valid&(1<<t) == 0 {
			continue
		}
		if ts.rows[t], err = c.ReadU32(); err != nil {
			return nil, err
		}
	}
	if ts.heapSizes&heapExtraData != 0 {
		if err := c.Skip(4); err != nil {
			return nil, err
		}
	}

	pos := c.Position()
	for t := Table(0); t < tableCount; t++ {
		ts.offsets[t] = pos
		ts.sizes[t] = ts.rowSize(t)
		pos += ts.sizes[t] * int(ts.rows[t])
	}
	if pos > len(data) {
		return nil, errors.ReadPastEnd(c.Position(), pos-c.Position(), len(data))
	}
	return ts, nil
}

// Rows returns the row count of t.
func (m *Metadata) Rows(t Table) uint32 {
	if m.tables == nil || t >= tableCount {
		return 0
	}
	return m.tables.rows[t]
}

// Row decodes row i (1-based) of t into one value per column. Heap and
// table references are returned as raw indexes.
func (m *Metadata) Row(t Table, i uint32) ([]uint32, error) {
	n := m.Rows(t)
	if i == 0 || i > n {
		return nil, errors.OutOfBounds(errors.PhaseDecode, []string{t.String()}, int(i), int(n))
	}
	ts := m.tables
	c, err := cursor.NewAt(ts.data, ts.offsets[t]+int(i-1)*ts.sizes[t])
	if err != nil {
		return nil, err
	}
	cols := schema[t]
	out := make([]uint32, len(cols))
	for k, col := range cols {
		if ts.width(col) == 2 {
			v, err := c.ReadU16()
			if err != nil {
				return nil, err
			}
			out[k] = uint32(v)
			continue
		}
		if out[k], err = c.ReadU32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// rowRange returns the half-open range of child rows owned by row i of a
// parent table whose column col starts a run in child.
func (m *Metadata) rowRange(parent Table, i uint32, col int, child Table) (uint32, uint32, error) {
	row, err := m.Row(parent, i)
	if err != nil {
		return 0, 0, err
	}
	start := row[col]
	end := m.Rows(child) + 1
	if i < m.Rows(parent) {
		next, err := m.Row(parent, i+1)
		if err != nil {
			return 0, 0, err
		}
		end = next[col]
	}
	if start == 0 || start > end || end > m.Rows(child)+1 {
		return 0, 0, errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
			Path(parent.String(), child.String()).
			Value(start).
			Detail("child run %d..%d outside table of %d rows", start, end, m.Rows(child)).
			Build()
	}
	return start, end, nil
}

// indirect maps a logical row through a pointer table when the
// uncompressed stream carries one.
func (m *Metadata) indirect(ptr Table, row uint32) (uint32, error) {
	if m.Rows(ptr) == 0 {
		return row, nil
	}
	r, err := m.Row(ptr, row)
	if err != nil {
		return 0, err
	}
	return r[0], nil
}
