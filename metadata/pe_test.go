package metadata

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/EWSoftware/SHFB-sub006/errors"
)

const (
	peHeaderOffset = 0x80
	peSectionRaw   = 0x200
	peSectionRVA   = 0x2000
	peCLIHeaderLen = 72
)

// peImage wraps a metadata root in a minimal PE32 image with one section
// holding the CLI header followed by the metadata.
func peImage(root []byte, withCLI bool) []byte {
	raw := newEncoder()
	raw.WriteU32(peCLIHeaderLen)
	raw.WriteU16(2)
	raw.WriteU16(5)
	raw.WriteU32(peSectionRVA + peCLIHeaderLen)
	raw.WriteU32(uint32(len(root)))
	for raw.Len() < peCLIHeaderLen {
		raw.Byte(0)
	}
	raw.WriteBytes(root)
	raw.Align(0x200)
	section := raw.Bytes()

	w := newEncoder()
	w.WriteBytes([]byte("MZ"))
	for w.Len() < 0x3C {
		w.Byte(0)
	}
	w.WriteU32(peHeaderOffset)
	for w.Len() < peHeaderOffset {
		w.Byte(0)
	}
	w.WriteBytes([]byte("PE\x00\x00"))

	// file header
	w.WriteU16(0x14C)
	w.WriteU16(1)
	w.WriteU32(0)
	w.WriteU32(0)
	w.WriteU32(0)
	w.WriteU16(224)
	w.WriteU16(0x2102)

	// optional header, PE32
	w.WriteU16(0x10B)
	w.Byte(8)
	w.Byte(0)
	w.WriteU32(uint32(len(section))) // SizeOfCode
	w.WriteU32(0)
	w.WriteU32(0)
	w.WriteU32(0) // AddressOfEntryPoint
	w.WriteU32(peSectionRVA)
	w.WriteU32(0)
	w.WriteU32(0x400000) // ImageBase
	w.WriteU32(0x2000)
	w.WriteU32(0x200)
	w.WriteU16(4)
	w.WriteU16(0)
	w.WriteU16(0)
	w.WriteU16(0)
	w.WriteU16(4)
	w.WriteU16(0)
	w.WriteU32(0)
	w.WriteU32(peSectionRVA + uint32(len(section))) // SizeOfImage
	w.WriteU32(peSectionRaw)
	w.WriteU32(0)
	w.WriteU16(3)
	w.WriteU16(0x8540)
	w.WriteU32(0x100000)
	w.WriteU32(0x1000)
	w.WriteU32(0x100000)
	w.WriteU32(0x1000)
	w.WriteU32(0)
	w.WriteU32(16)
	for i := range 16 {
		if i == dirCLIHeader && withCLI {
			w.WriteU32(peSectionRVA)
			w.WriteU32(peCLIHeaderLen)
			continue
		}
		w.WriteU32(0)
		w.WriteU32(0)
	}

	// section header
	w.WriteBytes([]byte(".text\x00\x00\x00"))
	w.WriteU32(uint32(len(section)))
	w.WriteU32(peSectionRVA)
	w.WriteU32(uint32(len(section)))
	w.WriteU32(peSectionRaw)
	w.WriteU32(0)
	w.WriteU32(0)
	w.WriteU16(0)
	w.WriteU16(0)
	w.WriteU32(0x60000020)

	for w.Len() < peSectionRaw {
		w.Byte(0)
	}
	w.WriteBytes(section)
	return w.Bytes()
}

func TestReadImage(t *testing.T) {
	b := demoAssembly(t)
	root := b.bytes()

	got, err := ReadImage(bytes.NewReader(peImage(root, true)))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, root) {
		t.Fatalf("metadata root differs: %d bytes, want %d", len(got), len(root))
	}

	path := filepath.Join(t.TempDir(), "Demo.dll")
	if err := os.WriteFile(path, peImage(root, true), 0o644); err != nil {
		t.Fatal(err)
	}
	md, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if md.Rows(TableTypeDef) != 5 {
		t.Errorf("TypeDef rows = %d", md.Rows(TableTypeDef))
	}
}

func TestReadImageErrors(t *testing.T) {
	root := demoAssembly(t).bytes()
	tests := []struct {
		name  string
		image []byte
		kind  errors.Kind
	}{
		{"not PE", []byte("plain text, not an image at all, padded out to be long enough for a DOS header check................................"), errors.KindMalformedMetadata},
		{"no CLI header", peImage(root, false), errors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadImage(bytes.NewReader(tt.image)); !hasKind(err, tt.kind) {
				t.Errorf("ReadImage: %v", err)
			}
		})
	}

	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.dll")); !hasKind(err, errors.KindMalformedMetadata) {
		t.Errorf("OpenFile(missing): %v", err)
	}
}
