package metadata

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ident"
	"github.com/EWSoftware/SHFB-sub006/metadata/internal/cursor"
)

// Signature is the magic number at the start of a metadata root ("BSJB").
const Signature uint32 = 0x424A5342

// Stream names.
const (
	StreamTables       = "#~"
	StreamTablesUnopt  = "#-"
	StreamStrings      = "#Strings"
	StreamUserStrings  = "#US"
	StreamGUID         = "#GUID"
	StreamBlob         = "#Blob"
	maxStreamNameBytes = 32
)

// Stream is one entry of the metadata root's stream directory.
type Stream struct {
	Name   string
	Offset uint32
	Size   uint32
}

// Metadata is a parsed metadata root. It borrows the buffer passed to Parse.
type Metadata struct {
	Version      string
	Streams      []Stream
	strings      []byte
	userStrings  []byte
	guids        []byte
	blobs        []byte
	tables       *tableStream
	MajorVersion uint16
	MinorVersion uint16
	Flags        uint16
}

// Parse decodes the metadata root at the start of buf.
func Parse(buf []byte) (*Metadata, error) {
	c := cursor.New(buf)
	sig, err := c.ReadU32()
	if err != nil {
		return nil, err
	}
	if sig != Signature {
		return nil, errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
			Offset(0).
			Value(sig).
			Detail("bad metadata signature 0x%08x", sig).
			Build()
	}

	m := &Metadata{}
	if m.MajorVersion, err = c.ReadU16(); err != nil {
		return nil, err
	}
	if m.MinorVersion, err = c.ReadU16(); err != nil {
		return nil, err
	}
	if err := c.Skip(4); err != nil {
		return nil, err
	}
	n, err := c.ReadU32()
	if err != nil {
		return nil, err
	}
	if n > uint32(c.Remaining()) {
		return nil, errors.ReadPastEnd(c.Position(), int(n), c.Len())
	}
	if m.Version, err = c.ReadASCII(int(n)); err != nil {
		return nil, err
	}
	if err := c.Align(4); err != nil {
		return nil, err
	}
	if m.Flags, err = c.ReadU16(); err != nil {
		return nil, err
	}
	count, err := c.ReadU16()
	if err != nil {
		return nil, err
	}

	for i := 0; i < int(count); i++ {
		at := c.Position()
		var s Stream
		if s.Offset, err = c.ReadU32(); err != nil {
			return nil, err
		}
		if s.Size, err = c.ReadU32(); err != nil {
			return nil, err
		}
		if s.Name, err = c.ReadASCIINulTerminated(); err != nil {
			return nil, err
		}
		if len(s.Name) > maxStreamNameBytes {
			return nil, errors.Malformed(at, "stream name of %d bytes", len(s.Name))
		}
		if err := c.Align(4); err != nil {
			return nil, err
		}
		if uint64(s.Offset)+uint64(s.Size) > uint64(len(buf)) {
			return nil, errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
				Offset(at).
				Path(s.Name).
				Detail("stream 0x%x+0x%x exceeds metadata of %d bytes", s.Offset, s.Size, len(buf)).
				Build()
		}
		m.Streams = append(m.Streams, s)
		if err := m.attach(s, buf[s.Offset:s.Offset+s.Size]); err != nil {
			return nil, err
		}
	}

	if m.tables == nil {
		return nil, errors.NotFound(errors.PhaseDecode, "stream", StreamTables)
	}
	Logger().Debug("parsed metadata root",
		zap.String("version", m.Version),
		zap.Int("streams", len(m.Streams)),
		zap.Uint32("typedefs", m.Rows(TableTypeDef)))
	return m, nil
}

func (m *Metadata) attach(s Stream, data []byte) error {
	switch s.Name {
	case StreamTables, StreamTablesUnopt:
		ts, err := parseTableStream(data)
		if err != nil {
			return errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
				Offset(int(s.Offset)).
				Path(s.Name).
				Cause(err).
				Detail("table stream header").
				Build()
		}
		m.tables = ts
	case StreamStrings:
		m.strings = data
	case StreamUserStrings:
		m.userStrings = data
	case StreamGUID:
		m.guids = data
	case StreamBlob:
		m.blobs = data
	default:
		Logger().Debug("ignoring stream", zap.String("name", s.Name))
	}
	return nil
}

// String reads entry i of the #Strings heap.
func (m *Metadata) String(i uint32) (string, error) {
	c, err := cursor.NewAt(m.strings, int(i))
	if err != nil {
		return "", err
	}
	return c.ReadUTF8NulTerminated()
}

// Identifier reads entry i of the #Strings heap and interns it in tab.
func (m *Metadata) Identifier(i uint32, tab *ident.Table) (ident.Identifier, error) {
	s, err := m.String(i)
	if err != nil {
		return ident.Empty, err
	}
	if tab == nil {
		tab = ident.Default
	}
	return tab.Intern(s), nil
}

// UserString reads entry i of the #US heap. The trailing flag byte of odd
// length entries is dropped.
func (m *Metadata) UserString(i uint32) (string, error) {
	c, err := cursor.NewAt(m.userStrings, int(i))
	if err != nil {
		return "", err
	}
	n, err := c.ReadCompressedInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", errors.Malformed(int(i), "negative user string length")
	}
	return c.ReadUTF16(int(n) / 2)
}

// GUID reads entry i (1-based) of the #GUID heap. Index 0 is uuid.Nil.
func (m *Metadata) GUID(i uint32) (uuid.UUID, error) {
	if i == 0 {
		return uuid.Nil, nil
	}
	c, err := cursor.NewAt(m.guids, int(i-1)*16)
	if err != nil {
		return uuid.Nil, err
	}
	b, err := c.ReadBytes(16)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(b)
}

// Blob reads entry i of the #Blob heap.
func (m *Metadata) Blob(i uint32) ([]byte, error) {
	c, err := cursor.NewAt(m.blobs, int(i))
	if err != nil {
		return nil, err
	}
	n, err := c.ReadCompressedInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Malformed(int(i), "negative blob length")
	}
	return c.ReadBytes(int(n))
}

// TableVersion returns the table stream schema version.
func (m *Metadata) TableVersion() (major, minor uint8) {
	return m.tables.major, m.tables.minor
}
