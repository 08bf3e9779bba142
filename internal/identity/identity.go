package identity

import (
	"crypto/sha256"
	"fmt"
)

// Compute derives the stable identifier for a news item from its title and
// link. The same (title, link) pair always maps to the same identifier, so the
// history store can recognize an item across runs regardless of fetch order or
// which source produced it.
func Compute(title, link string) string {
	hash := sha256.Sum256([]byte(title + "|" + link))
	return fmt.Sprintf("%x", hash)
}
