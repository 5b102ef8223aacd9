package alttext

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
)

const checksumChunkSize = 32 * 1024

// Checksum streams r through SHA-256 in fixed-size chunks and returns the
// lowercase hex digest. The digest is the canonical identity of an upload.
func Checksum(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, checksumChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// StorageKey derives the storage-backend key for a stored file. The
// extension is lowercased and stripped of leading dots; an empty extension
// yields the bare checksum.
func StorageKey(checksum, extension string) string {
	ext := strings.ToLower(strings.TrimLeft(extension, "."))
	if ext == "" {
		return checksum
	}
	return checksum + "." + ext
}
