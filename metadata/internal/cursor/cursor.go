// Package cursor decodes the primitive encodings of CLI metadata from an
// immutable byte buffer.
//
// Every read is bounds-checked: a read that would leave the buffer returns a
// malformed metadata error and leaves the position unchanged.
package cursor

import (
	"encoding/binary"
	"math"
	"unicode/utf16"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ident"
)

const (
	// maxReliableUTF8 is the largest UTF-8 length taken at face value.
	maxReliableUTF8 = 0x7FFF
	// utf8RescanSkip and utf8RescanCap drive the recovery for larger lengths.
	utf8RescanSkip = 5
	utf8RescanCap  = 256

	asciiInitialGuess = 128
)

// Cursor is a positioned read-only view over a byte buffer.
// The caller owns the buffer and must keep it alive and unmodified
// while the cursor or any string derived from it is in use.
type Cursor struct {
	buf []byte
	pos int
}

// New creates a cursor at offset 0.
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// NewAt creates a cursor at the given offset.
func NewAt(buf []byte, pos int) (*Cursor, error) {
	c := New(buf)
	if err := c.Seek(pos); err != nil {
		return nil, err
	}
	return c, nil
}

// Position returns the current offset.
func (c *Cursor) Position() int {
	return c.pos
}

// Len returns the buffer length.
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// Seek moves to an absolute offset. The end of the buffer is a valid position.
func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.buf) {
		return errors.Malformed(pos, "seek outside buffer of length %d", len(c.buf))
	}
	c.pos = pos
	return nil
}

// Skip advances by n bytes.
func (c *Cursor) Skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

func (c *Cursor) need(n int) error {
	if n < 0 || n > len(c.buf)-c.pos {
		return errors.ReadPastEnd(c.pos, n, len(c.buf))
	}
	return nil
}

func (c *Cursor) take(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// Align advances to the next multiple of n, which must be one of
// 2, 4, 8, 16, 32 or 64. Aligning to the buffer end is allowed.
func (c *Cursor) Align(n int) error {
	switch n {
	case 2, 4, 8, 16, 32, 64:
	default:
		return errors.InvalidInput(errors.PhaseDecode, "alignment must be a power of two in [2, 64]")
	}
	next := (c.pos + n - 1) &^ (n - 1)
	if next > len(c.buf) {
		return errors.ReadPastEnd(c.pos, next-c.pos, len(c.buf))
	}
	c.pos = next
	return nil
}

// ReadByte reads one byte.
func (c *Cursor) ReadByte() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// ReadSByte reads one signed byte.
func (c *Cursor) ReadSByte() (int8, error) {
	b, err := c.ReadByte()
	return int8(b), err
}

// ReadBool reads one byte; any non-zero value is true.
func (c *Cursor) ReadBool() (bool, error) {
	b, err := c.ReadByte()
	return b != 0, err
}

// ReadU16 reads a little-endian uint16.
func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadI16 reads a little-endian int16.
func (c *Cursor) ReadI16() (int16, error) {
	v, err := c.ReadU16()
	return int16(v), err
}

// ReadI32 reads a little-endian int32.
func (c *Cursor) ReadI32() (int32, error) {
	v, err := c.ReadU32()
	return int32(v), err
}

// ReadI64 reads a little-endian int64.
func (c *Cursor) ReadI64() (int64, error) {
	v, err := c.ReadU64()
	return int64(v), err
}

// ReadF32 reads a little-endian IEEE 754 float32.
func (c *Cursor) ReadF32() (float32, error) {
	v, err := c.ReadU32()
	return math.Float32frombits(v), err
}

// ReadF64 reads a little-endian IEEE 754 float64.
func (c *Cursor) ReadF64() (float64, error) {
	v, err := c.ReadU64()
	return math.Float64frombits(v), err
}

// ReadBytes copies the next n bytes.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	b, err := c.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadCompressedInt decodes a 1, 2 or 4 byte compressed integer.
// The header byte 0xFF decodes to -1.
func (c *Cursor) ReadCompressedInt() (int32, error) {
	start := c.pos
	h, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	switch {
	case h&0x80 == 0:
		return int32(h), nil
	case h&0x40 == 0:
		b, err := c.ReadByte()
		if err != nil {
			c.pos = start
			return 0, err
		}
		return int32(h&0x3F)<<8 | int32(b), nil
	case h == 0xFF:
		return -1, nil
	default:
		b, err := c.take(3)
		if err != nil {
			c.pos = start
			return 0, err
		}
		return int32(h&0x3F)<<24 | int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2]), nil
	}
}

// ReadCompressedIdentifier reads a compressed length followed by that many
// single-byte characters and interns the text in tab (ident.Default if nil).
func (c *Cursor) ReadCompressedIdentifier(tab *ident.Table) (ident.Identifier, error) {
	start := c.pos
	n, err := c.ReadCompressedInt()
	if err != nil {
		return ident.Empty, err
	}
	if n < 0 {
		c.pos = start
		return ident.Empty, errors.Malformed(start, "negative identifier length")
	}
	raw, err := c.take(int(n))
	if err != nil {
		c.pos = start
		return ident.Empty, err
	}
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		c.pos = start
		return ident.Empty, errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
			Offset(start).Cause(err).Detail("latin-1 identifier").Build()
	}
	if tab == nil {
		tab = ident.Default
	}
	return tab.Intern(string(text)), nil
}

// ReadUTF8 decodes n bytes of UTF-8.
//
// A length above 0x7FFF is not trusted: the cursor skips 5 bytes and
// rescans, counting bytes until a control byte (<= 0x1F) or a 256 byte cap,
// and decodes that many bytes instead.
func (c *Cursor) ReadUTF8(n int) (string, error) {
	units, err := c.ReadUTF8Units(n)
	if err != nil {
		return "", err
	}
	return string(utf16.Decode(units)), nil
}

// ReadUTF8Units is ReadUTF8 returning UTF-16 code units.
func (c *Cursor) ReadUTF8Units(n int) ([]uint16, error) {
	if n < 0 {
		return nil, errors.Malformed(c.pos, "negative string length %d", n)
	}
	if n > maxReliableUTF8 {
		start := c.pos
		if err := c.Skip(utf8RescanSkip); err != nil {
			return nil, err
		}
		n = c.scanUntilControl()
		Logger().Warn("unreliable UTF-8 length, rescanned",
			zap.Int("offset", start),
			zap.Int("length", n))
	}
	b, err := c.take(n)
	if err != nil {
		return nil, err
	}
	return decodeUTF8(b), nil
}

func (c *Cursor) scanUntilControl() int {
	n := 0
	for n < utf8RescanCap && c.pos+n < len(c.buf) && c.buf[c.pos+n] > 0x1F {
		n++
	}
	return n
}

// ReadUTF8NulTerminated decodes UTF-8 up to a 0 byte and consumes the terminator.
func (c *Cursor) ReadUTF8NulTerminated() (string, error) {
	n := c.indexByte(0)
	if n < 0 {
		return "", errors.Malformed(c.pos, "unterminated UTF-8 string")
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n + 1
	return string(utf16.Decode(decodeUTF8(b))), nil
}

func (c *Cursor) indexByte(v byte) int {
	for i := c.pos; i < len(c.buf); i++ {
		if c.buf[i] == v {
			return i - c.pos
		}
	}
	return -1
}

// decodeUTF8 converts UTF-8 into UTF-16 code units. A lead byte whose
// continuation bytes run out is emitted verbatim together with whatever
// follows it, and decoding stops. A single trailing 0 unit is dropped.
func decodeUTF8(b []byte) []uint16 {
	out := make([]uint16, 0, len(b))
	i := 0
	for i < len(b) {
		lead := b[i]
		i++
		if lead&0x80 == 0 || i == len(b) {
			out = append(out, uint16(lead))
			continue
		}
		b1 := b[i]
		i++
		if lead&0x20 == 0 {
			out = append(out, uint16(lead&0x1F)<<6|uint16(b1&0x3F))
			continue
		}
		if i == len(b) {
			out = append(out, uint16(lead), uint16(b1))
			break
		}
		b2 := b[i]
		i++
		var cp uint32
		if lead&0x10 == 0 {
			cp = uint32(lead&0x0F)<<12 | uint32(b1&0x3F)<<6 | uint32(b2&0x3F)
		} else {
			if i == len(b) {
				out = append(out, uint16(lead), uint16(b1), uint16(b2))
				break
			}
			b3 := b[i]
			i++
			cp = uint32(lead&0x07)<<18 | uint32(b1&0x3F)<<12 | uint32(b2&0x3F)<<6 | uint32(b3&0x3F)
		}
		if cp <= 0xFFFF {
			out = append(out, uint16(cp))
			continue
		}
		cp -= 0x10000
		out = append(out, uint16(0xD800+(cp>>10)), uint16(0xDC00+(cp&0x3FF)))
	}
	if len(out) > 0 && out[len(out)-1] == 0 {
		out = out[:len(out)-1]
	}
	return out
}

// ReadUTF16 reads n UTF-16 code units.
func (c *Cursor) ReadUTF16(n int) (string, error) {
	if n < 0 {
		return "", errors.Malformed(c.pos, "negative string length %d", n)
	}
	if n > (len(c.buf)-c.pos)/2 {
		return "", errors.ReadPastEnd(c.pos, n*2, len(c.buf))
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(c.buf[c.pos+2*i:])
	}
	c.pos += 2 * n
	return string(utf16.Decode(units)), nil
}

// ReadUTF16NulTerminated reads UTF-16 code units up to a 0 unit and consumes it.
func (c *Cursor) ReadUTF16NulTerminated() (string, error) {
	start := c.pos
	var units []uint16
	for {
		u, err := c.ReadU16()
		if err != nil {
			c.pos = start
			return "", errors.Malformed(start, "unterminated UTF-16 string")
		}
		if u == 0 {
			return string(utf16.Decode(units)), nil
		}
		units = append(units, u)
	}
}

// ReadASCII reads n bytes as single-byte characters, stopping the text at
// the first 0 byte while still consuming all n. With n == -1 it reads up to
// and including a 0 terminator, growing its buffer by doubling.
func (c *Cursor) ReadASCII(n int) (string, error) {
	if n == -1 {
		return c.readASCIIUnbounded()
	}
	b, err := c.take(n)
	if err != nil {
		return "", err
	}
	for i, v := range b {
		if v == 0 {
			return string(b[:i]), nil
		}
	}
	return string(b), nil
}

// ReadASCIINulTerminated is ReadASCII(-1).
func (c *Cursor) ReadASCIINulTerminated() (string, error) {
	return c.ReadASCII(-1)
}

func (c *Cursor) readASCIIUnbounded() (string, error) {
	start := c.pos
	buf := make([]byte, asciiInitialGuess)
	n := 0
	for {
		if c.pos+n >= len(c.buf) {
			return "", errors.Malformed(start, "unterminated ASCII string")
		}
		v := c.buf[c.pos+n]
		if v == 0 {
			break
		}
		if n == len(buf) {
			grown := make([]byte, 2*len(buf))
			copy(grown, buf)
			buf = grown
		}
		buf[n] = v
		n++
	}
	c.pos += n + 1
	return string(buf[:n]), nil
}
