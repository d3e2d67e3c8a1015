package metadata

import (
	"testing"
	"unicode/utf16"

	"github.com/google/uuid"
)

// mdBuilder assembles a metadata root from rows and heap entries.
type mdBuilder struct {
	strings   *encoder
	blobs     *encoder
	guids     *encoder
	us        *encoder
	strIdx    map[string]uint32
	rows      [tableCount][][]uint32
	version   string
	heapSizes byte
	noTables  bool
}

func newBuilder() *mdBuilder {
	b := &mdBuilder{
		strings: newEncoder(),
		blobs:   newEncoder(),
		guids:   newEncoder(),
		us:      newEncoder(),
		strIdx:  make(map[string]uint32),
		version: "v4.0.30319",
	}
	b.strings.Byte(0)
	b.blobs.Byte(0)
	b.us.Byte(0)
	return b
}

func (b *mdBuilder) str(s string) uint32 {
	if s == "" {
		return 0
	}
	if i, ok := b.strIdx[s]; ok {
		return i
	}
	i := uint32(b.strings.Len())
	b.strings.WriteNulTerminated(s)
	b.strIdx[s] = i
	return i
}

func (b *mdBuilder) blob(data ...byte) uint32 {
	i := uint32(b.blobs.Len())
	b.blobs.WriteCompressedInt(int32(len(data)))
	b.blobs.WriteBytes(data)
	return i
}

func (b *mdBuilder) guid(u uuid.UUID) uint32 {
	b.guids.WriteBytes(u[:])
	return uint32(b.guids.Len() / 16)
}

func (b *mdBuilder) userString(s string) uint32 {
	i := uint32(b.us.Len())
	b.us.WriteCompressedInt(int32(2*len(utf16.Encode([]rune(s))) + 1))
	b.us.WriteUTF16(s)
	b.us.Byte(0)
	return i
}

// add appends a row and returns its 1-based number.
func (b *mdBuilder) add(t Table, cols ...uint32) uint32 {
	if len(cols) != len(schema[t]) {
		panic("wrong column count for " + t.String())
	}
	b.rows[t] = append(b.rows[t], cols)
	return uint32(len(b.rows[t]))
}

func enc(t *testing.T, c CodedIndex, table Table, row uint32) uint32 {
	t.Helper()
	v, ok := c.Encode(table, row)
	if !ok {
		t.Fatalf("%s cannot reference %s", c, table)
	}
	return v
}

func (b *mdBuilder) tableStream() []byte {
	var lay layout
	lay.heapSizes = b.heapSizes
	var valid uint64
	for t := range b.rows {
		lay.rows[t] = uint32(len(b.rows[t]))
		if len(b.rows[t]) > 0 {
			valid |= 1 << t
		}
	}
	w := newEncoder()
	w.WriteU32(0)
	w.Byte(2)
	w.Byte(0)
	w.Byte(b.heapSizes)
	w.Byte(1)
	w.WriteU64(valid)
	w.WriteU64(0)
	for t := range b.rows {
		if len(b.rows[t]) > 0 {
			w.WriteU32(uint32(len(b.rows[t])))
		}
	}
	for t, rows := range b.rows {
		for _, r := range rows {
			for k, col := range schema[t] {
				if lay.width(col) == 2 {
					w.WriteU16(uint16(r[k]))
				} else {
					w.WriteU32(r[k])
				}
			}
		}
	}
	return w.Bytes()
}

func padded(w *encoder) []byte {
	out := newEncoder()
	out.WriteBytes(w.Bytes())
	out.Align(4)
	return out.Bytes()
}

func (b *mdBuilder) bytes() []byte {
	type stream struct {
		name string
		data []byte
	}
	var streams []stream
	if !b.noTables {
		ts := newEncoder()
		ts.WriteBytes(b.tableStream())
		streams = append(streams, stream{StreamTables, padded(ts)})
	}
	streams = append(streams,
		stream{StreamStrings, padded(b.strings)},
		stream{StreamUserStrings, padded(b.us)},
		stream{StreamGUID, padded(b.guids)},
		stream{StreamBlob, padded(b.blobs)},
	)

	versionLen := (len(b.version) + 1 + 3) &^ 3
	headerLen := 16 + versionLen + 4
	for _, s := range streams {
		headerLen += 8 + (len(s.name)+1+3)&^3
	}

	w := newEncoder()
	w.WriteU32(Signature)
	w.WriteU16(1)
	w.WriteU16(1)
	w.WriteU32(0)
	w.WriteU32(uint32(versionLen))
	w.WriteBytes([]byte(b.version))
	for i := len(b.version); i < versionLen; i++ {
		w.Byte(0)
	}
	w.WriteU16(0)
	w.WriteU16(uint16(len(streams)))
	off := headerLen
	for _, s := range streams {
		w.WriteU32(uint32(off))
		w.WriteU32(uint32(len(s.data)))
		w.WriteNulTerminated(s.name)
		w.Align(4)
		off += len(s.data)
	}
	for _, s := range streams {
		w.WriteBytes(s.data)
	}
	return w.Bytes()
}

func (b *mdBuilder) parse(t *testing.T) *Metadata {
	t.Helper()
	md, err := Parse(b.bytes())
	if err != nil {
		t.Fatal(err)
	}
	return md
}
