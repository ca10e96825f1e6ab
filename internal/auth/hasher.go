package auth

import "golang.org/x/crypto/bcrypt"

// DefaultBcryptCost balances offline brute-force resistance against login
// latency.
const DefaultBcryptCost = 10

// Hasher performs one-way hashing and verification of local passwords.
type Hasher struct {
	cost int
}

// NewHasher constructs a Hasher with the given bcrypt cost. Costs outside
// bcrypt's supported range fall back to DefaultBcryptCost.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return Hasher{cost: cost}
}

// Hash returns the salted bcrypt digest of the plaintext.
func (h Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether the plaintext matches the digest. A malformed
// digest yields false rather than an error.
func (h Hasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
