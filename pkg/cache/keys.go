package cache

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxKeyLength is the longest key any layer accepts.
const MaxKeyLength = 250

// ValidateKey checks that key is non-empty, at most MaxKeyLength bytes,
// free of control characters and without surrounding whitespace.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key too long (max %d characters)", ErrInvalidKey, MaxKeyLength)
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
		}
	}

	if strings.TrimSpace(key) != key {
		return fmt.Errorf("%w: key has leading or trailing whitespace", ErrInvalidKey)
	}

	return nil
}

// KeyPattern builds keys with a fixed prefix and separator.
type KeyPattern struct {
	prefix    string
	separator string
}

// NewKeyPattern creates a key pattern. An empty separator means ":".
func NewKeyPattern(prefix, separator string) *KeyPattern {
	if separator == "" {
		separator = ":"
	}
	return &KeyPattern{
		prefix:    prefix,
		separator: separator,
	}
}

// Build joins the prefix and parts.
// Example: NewKeyPattern("txn", ":").Build("currency", "USD") -> "txn:currency:USD"
func (kp *KeyPattern) Build(parts ...string) string {
	if len(parts) == 0 {
		return kp.prefix
	}

	var b strings.Builder
	b.WriteString(kp.prefix)
	for _, part := range parts {
		b.WriteString(kp.separator)
		b.WriteString(part)
	}
	return b.String()
}

// BuildValid is Build followed by ValidateKey.
func (kp *KeyPattern) BuildValid(parts ...string) (string, error) {
	key := kp.Build(parts...)
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}
