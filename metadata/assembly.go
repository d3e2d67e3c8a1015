package metadata

import (
	"crypto/sha1"
	"slices"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/gac"
)

// assemblyFlagPublicKey marks a full public key rather than its token.
const assemblyFlagPublicKey uint32 = 0x0001

const publicKeyTokenSize = 8

// Assembly returns the identity of the assembly defined by this metadata.
func (m *Metadata) Assembly() (gac.Reference, error) {
	if m.Rows(TableAssembly) == 0 {
		return gac.Reference{}, errors.NotFound(errors.PhaseDecode, "table", TableAssembly.String())
	}
	r, err := m.Row(TableAssembly, 1)
	if err != nil {
		return gac.Reference{}, err
	}
	// HashAlgId, version, Flags, PublicKey, Name, Culture
	return m.reference(r[1:5], r[5]|assemblyFlagPublicKey, r[6], r[7], r[8])
}

// AssemblyReferences returns the AssemblyRef table in row order.
func (m *Metadata) AssemblyReferences() ([]gac.Reference, error) {
	n := m.Rows(TableAssemblyRef)
	out := make([]gac.Reference, 0, n)
	for i := uint32(1); i <= n; i++ {
		r, err := m.Row(TableAssemblyRef, i)
		if err != nil {
			return nil, err
		}
		// version, Flags, PublicKeyOrToken, Name, Culture, HashValue
		ref, err := m.reference(r[0:4], r[4], r[5], r[6], r[7])
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}

func (m *Metadata) reference(version []uint32, flags, key, name, culture uint32) (gac.Reference, error) {
	var ref gac.Reference
	var err error
	if ref.Name, err = m.String(name); err != nil {
		return ref, err
	}
	if ref.Culture, err = m.String(culture); err != nil {
		return ref, err
	}
	ref.Version = gac.Version{
		Major:    uint16(version[0]),
		Minor:    uint16(version[1]),
		Build:    uint16(version[2]),
		Revision: uint16(version[3]),
	}
	blob, err := m.Blob(key)
	if err != nil {
		return ref, err
	}
	switch {
	case len(blob) == 0:
	case flags&assemblyFlagPublicKey != 0:
		ref.PublicKeyToken = publicKeyToken(blob)
	default:
		ref.PublicKeyToken = blob
	}
	return ref, nil
}

// publicKeyToken is the last 8 bytes of the SHA-1 of the key, reversed.
func publicKeyToken(key []byte) []byte {
	sum := sha1.Sum(key)
	token := slices.Clone(sum[len(sum)-publicKeyTokenSize:])
	slices.Reverse(token)
	return token
}
