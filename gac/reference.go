package gac

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// Version is a four part assembly version.
type Version struct {
	Major    uint16
	Minor    uint16
	Build    uint16
	Revision uint16
}

func (v Version) String() string {
	var b strings.Builder
	for i, p := range [4]uint16{v.Major, v.Minor, v.Build, v.Revision} {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(p), 10))
	}
	return b.String()
}

// Reference identifies an assembly by name, version, culture and public key
// token. An empty Culture is the neutral culture; a nil token means the
// assembly is not strong named.
type Reference struct {
	Name           string
	Culture        string
	PublicKeyToken []byte
	Version        Version
}

// String renders the reference in display-name form.
func (r Reference) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteString(", Version=")
	b.WriteString(r.Version.String())
	b.WriteString(", Culture=")
	if r.Culture == "" {
		b.WriteString("neutral")
	} else {
		b.WriteString(r.Culture)
	}
	b.WriteString(", PublicKeyToken=")
	if len(r.PublicKeyToken) == 0 {
		b.WriteString("null")
	} else {
		b.WriteString(hex.EncodeToString(r.PublicKeyToken))
	}
	return b.String()
}
