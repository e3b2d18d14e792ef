package utils

import (
	"crypto/rand"
	"strings"
)

const (
	idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength   = 10

	PersonIDPrefix = "per"
)

// GenerateID returns prefix, a dash and idLength random alphanumerics.
func GenerateID(prefix string) string {
	var b strings.Builder
	b.Grow(len(prefix) + 1 + idLength)
	b.WriteString(prefix)
	b.WriteByte('-')

	// bytes at or above limit are rejected so every symbol is equally likely
	const limit = 256 - 256%len(idAlphabet)
	buf := make([]byte, idLength*2)
	for n := 0; n < idLength; {
		if _, err := rand.Read(buf); err != nil {
			panic("utils: crypto/rand failed: " + err.Error())
		}
		for _, c := range buf {
			if int(c) >= limit {
				continue
			}
			b.WriteByte(idAlphabet[int(c)%len(idAlphabet)])
			if n++; n == idLength {
				break
			}
		}
	}
	return b.String()
}

// ValidateID reports whether id has the shape GenerateID(prefix) produces.
func ValidateID(prefix, id string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"-")
	if !ok || len(rest) != idLength {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if strings.IndexByte(idAlphabet, rest[i]) < 0 {
			return false
		}
	}
	return true
}

func ValidatePersonID(personID string) bool {
	return ValidateID(PersonIDPrefix, personID)
}

// ValidatePersonalNumber checks for an 11-digit national personal number.
func ValidatePersonalNumber(number string) bool {
	if len(number) != 11 {
		return false
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
