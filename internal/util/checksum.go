package util

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Digest is an io.Writer that tracks the SHA-256 and the size of everything
// written to it.
type Digest struct {
	h hash.Hash
	n int64
}

// NewDigest returns an empty digest.
func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

// Write never fails.
func (d *Digest) Write(p []byte) (int, error) {
	n, _ := d.h.Write(p)
	d.n += int64(n)
	return n, nil
}

// Size returns the number of bytes written.
func (d *Digest) Size() int64 { return d.n }

// Sum returns the hex-encoded SHA-256 digest.
func (d *Digest) Sum() string { return hex.EncodeToString(d.h.Sum(nil)) }

// SHA256 drains r and returns:
//   - the hex-encoded digest
//   - the number of bytes read
func SHA256(r io.Reader) (sum string, size int64, err error) {
	d := NewDigest()
	if _, err := io.Copy(d, r); err != nil {
		return "", 0, err
	}
	return d.Sum(), d.Size(), nil
}
