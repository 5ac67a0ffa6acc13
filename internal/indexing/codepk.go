package indexing

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/standardbeagle/lci/internal/encoding"
)

// CodePK is the opaque, stable identifier of a CodeSource document. It is
// assigned once at creation and never reused, even across rename/update.
type CodePK string

// NewCodePK draws 128 bits from the system CSPRNG and renders them as two
// base-63 words. Collision probability is the same as a random UUIDv4; the
// base-63 alphabet just keeps the untokenized field shorter than hex.
func NewCodePK() CodePK {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is broken,
		// which is not a condition this package can recover from.
		panic("indexing: failed to read random CodePK bytes: " + err.Error())
	}

	hi := binary.BigEndian.Uint64(raw[0:8])
	lo := binary.BigEndian.Uint64(raw[8:16])

	return CodePK(encoding.Base63Encode(hi) + "-" + encoding.Base63Encode(lo))
}

func (pk CodePK) String() string {
	return string(pk)
}
