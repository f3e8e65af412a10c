// Package digest computes content hashes of artifacts for provenance.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// ChunkSize is the read buffer size used when streaming a file through the digest
const ChunkSize = 8192

// FileSHA256 streams the file at path through SHA-256 in ChunkSize reads and
// returns the lowercase hex digest. The file is never loaded whole into memory.
func FileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return ReaderSHA256(file)
}

// ReaderSHA256 digests r until EOF
func ReaderSHA256(r io.Reader) (string, error) {
	hasher := sha256.New()
	if err := feed(hasher, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func feed(h hash.Hash, r io.Reader) error {
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read chunk: %w", err)
		}
	}
}

// Equal reports whether two hex digests name the same content
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	ab, errA := hex.DecodeString(a)
	bb, errB := hex.DecodeString(b)
	if errA != nil || errB != nil {
		return false
	}
	for i := range ab {
		if ab[i] != bb[i] {
			return false
		}
	}
	return true
}
