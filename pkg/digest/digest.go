// Package digest reduces a matrix to the checksum submitted to the remote
// validator.
//
// The canonical text is the row-major concatenation of every cell in decimal,
// sign included, with no separators. The digest is MD5 over the UTF-8 bytes
// of that text. The validator expects each digest byte written as an
// unpadded decimal number with no separators, not hex; String produces
// exactly that form.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"

	"github.com/polisai/polis-matrix/pkg/matrix"
)

// Size is the digest length in bytes.
const Size = md5.Size

// Digest is the MD5 sum of a matrix's canonical text.
type Digest [Size]byte

// Canonical returns the canonical text of m as UTF-8 bytes.
func Canonical(m *matrix.Matrix) []byte {
	n := m.Size()
	// Most cells of a fetched product fit in 12 characters.
	buf := make([]byte, 0, n*n*12)
	m.Each(func(_, _, v int) {
		buf = strconv.AppendInt(buf, int64(v), 10)
	})
	return buf
}

// Reduce computes the digest of m.
func Reduce(m *matrix.Matrix) Digest {
	return Digest(md5.Sum(Canonical(m)))
}

// String renders the digest in the validator's decimal-byte form.
func (d Digest) String() string {
	buf := make([]byte, 0, Size*3)
	for _, b := range d {
		buf = strconv.AppendUint(buf, uint64(b), 10)
	}
	return string(buf)
}

// Hex renders the digest as lowercase hex for logs.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}
