package metadata

import (
	"bytes"
	"encoding/binary"
)

// encoder writes little-endian metadata structures for test images.
type encoder struct {
	buf bytes.Buffer
}

func newEncoder() *encoder {
	return &encoder{}
}

func (e *encoder) Bytes() []byte { return e.buf.Bytes() }
func (e *encoder) Len() int      { return e.buf.Len() }
func (e *encoder) Byte(b byte)   { e.buf.WriteByte(b) }

func (e *encoder) WriteBytes(data []byte) {
	e.buf.Write(data)
}

func (e *encoder) WriteU16(v uint16) {
	e.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (e *encoder) WriteU32(v uint32) {
	e.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (e *encoder) WriteU64(v uint64) {
	e.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
}

// WriteNulTerminated writes s followed by a 0 byte.
func (e *encoder) WriteNulTerminated(s string) {
	e.buf.WriteString(s)
	e.buf.WriteByte(0)
}

// Align pads with zero bytes to a multiple of n.
func (e *encoder) Align(n int) {
	for e.buf.Len()%n != 0 {
		e.buf.WriteByte(0)
	}
}
