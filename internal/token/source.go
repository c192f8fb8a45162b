package token

import (
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Source is the identity of a compiled script: its name and full text.
// The digest keys persisted optimistic type information.
type Source struct {
	Name    string
	Content []byte

	once   sync.Once
	digest string
}

// NewSource creates a source from its name and text.
func NewSource(name string, content []byte) *Source {
	return &Source{Name: name, Content: content}
}

// Digest returns a stable hex digest of the source text.
func (s *Source) Digest() string {
	s.once.Do(func() {
		sum := blake2b.Sum256(s.Content)
		s.digest = hex.EncodeToString(sum[:16])
	})
	return s.digest
}
