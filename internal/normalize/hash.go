package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"unicode/utf16"
)

// Hasher maps a patient name to the one-way token stored in duplicate keys.
type Hasher func(name string) string

// Hash algorithm names accepted by HasherFor.
const (
	HashSHA256 = "sha256"
	HashLegacy = "legacy"
)

// nameHashWidth is the number of hex characters kept from the digest.
const nameHashWidth = 16

// FileHash computes the hex-encoded SHA-256 of the file at path.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hash: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// NameHash returns the first 16 hex characters of SHA-256(name).
func NameHash(name string) string {
	if name == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])[:nameHashWidth]
}

// LegacyNameHash reproduces the 32-bit shift-add string hash used by the
// browser tool (h = h*31 + c over UTF-16 units, absolute value in hex), so
// key sets it persisted still match.
func LegacyNameHash(name string) string {
	if name == "" {
		return ""
	}
	var h int32
	for _, c := range utf16.Encode([]rune(name)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 16)
}

// HasherFor resolves a configured hash algorithm name.
func HasherFor(name string) (Hasher, error) {
	switch name {
	case "", HashSHA256:
		return NameHash, nil
	case HashLegacy:
		return LegacyNameHash, nil
	default:
		return nil, fmt.Errorf("unknown name hash %q", name)
	}
}
