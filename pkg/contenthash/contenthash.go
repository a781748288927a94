// Package contenthash computes the SHA-256 digests recorded for stored
// document content. Digests are lowercase hex strings of HexLength characters.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// HexLength is the length of a hex-encoded digest.
const HexLength = sha256.Size * 2

// Sum streams r through SHA-256 and returns the hex digest.
func Sum(r io.Reader) (string, error) {
	w := NewWriter()
	if _, err := io.Copy(w, r); err != nil {
		return "", fmt.Errorf("error hashing content: %w", err)
	}
	return w.Hex(), nil
}

// SumBytes returns the hex digest of data.
func SumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Writer is an io.Writer that accumulates a digest. It is meant to sit behind
// an io.TeeReader so content is hashed while it is being stored.
type Writer struct {
	h hash.Hash
	n int64
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{h: sha256.New()}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.h.Write(p)
	w.n += int64(n)
	return n, err
}

// Hex returns the digest of everything written so far.
func (w *Writer) Hex() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// Size returns the number of bytes written.
func (w *Writer) Size() int64 {
	return w.n
}

// Valid reports whether s looks like a digest produced by this package.
func Valid(s string) bool {
	if len(s) != HexLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
