package metadata

import (
	"debug/pe"
	"io"

	"go.uber.org/zap"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/metadata/internal/cursor"
)

// dirCLIHeader is the data directory entry of the CLI header.
const dirCLIHeader = 14

// cliHeaderSize is the size of the CLI header up to the metadata directory.
const cliHeaderSize = 16

// Open reads the PE image at path and parses its metadata root.
func Open(path string) (*Metadata, error) {
	buf, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(buf)
}

// OpenFile reads the PE image at path and returns a copy of its metadata
// root bytes.
func OpenFile(path string) ([]byte, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
			Path(path).
			Cause(err).
			Detail("not a PE image").
			Build()
	}
	defer f.Close()
	buf, err := readImage(f)
	if err != nil {
		return nil, err
	}
	Logger().Debug("located metadata", zap.String("path", path), zap.Int("bytes", len(buf)))
	return buf, nil
}

// ReadImage parses a PE image from r and returns a copy of its metadata
// root bytes.
func ReadImage(r io.ReaderAt) ([]byte, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return nil, errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
			Cause(err).
			Detail("not a PE image").
			Build()
	}
	return readImage(f)
}

func readImage(f *pe.File) ([]byte, error) {
	var dirs []pe.DataDirectory
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dirs = oh.DataDirectory[:min(oh.NumberOfRvaAndSizes, uint32(len(oh.DataDirectory)))]
	case *pe.OptionalHeader64:
		dirs = oh.DataDirectory[:min(oh.NumberOfRvaAndSizes, uint32(len(oh.DataDirectory)))]
	}
	if len(dirs) <= dirCLIHeader || dirs[dirCLIHeader].VirtualAddress == 0 {
		return nil, errors.NotFound(errors.PhaseDecode, "data directory", "CLI header")
	}
	dir := dirs[dirCLIHeader]
	header, err := readRVA(f, dir.VirtualAddress, cliHeaderSize)
	if err != nil {
		return nil, err
	}
	c := cursor.New(header)
	// cb, major and minor runtime version
	if err := c.Skip(8); err != nil {
		return nil, err
	}
	rva, err := c.ReadU32()
	if err != nil {
		return nil, err
	}
	size, err := c.ReadU32()
	if err != nil {
		return nil, err
	}
	return readRVA(f, rva, size)
}

// readRVA copies size bytes at a relative virtual address.
func readRVA(f *pe.File, rva, size uint32) ([]byte, error) {
	for _, s := range f.Sections {
		if rva < s.VirtualAddress || rva-s.VirtualAddress >= max(s.VirtualSize, s.Size) {
			continue
		}
		off := rva - s.VirtualAddress
		if uint64(off)+uint64(size) > uint64(s.Size) {
			return nil, errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
				Path(s.Name).
				Value(rva).
				Detail("0x%x bytes at rva 0x%x exceed section raw data", size, rva).
				Build()
		}
		buf := make([]byte, size)
		if _, err := s.ReadAt(buf, int64(off)); err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
				Path(s.Name).
				Cause(err).
				Detail("section data").
				Build()
		}
		return buf, nil
	}
	return nil, errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
		Value(rva).
		Detail("rva 0x%x is in no section", rva).
		Build()
}
