package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// MaxSecretBytes is the longest secret bcrypt reads in full.
const MaxSecretBytes = 72

// Hasher hashes and verifies passwords with bcrypt. The cost is encoded in
// every hash, so raising it later leaves existing hashes verifiable.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	return string(b), err
}

// Verify reports whether secret matches hash. A malformed hash is a mismatch,
// and so is a secret too long to have been hashed.
func (h *Hasher) Verify(secret, hash string) bool {
	if len(secret) > MaxSecretBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// NeedsRehash reports whether hash was produced with a different cost than
// the one h is configured with.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != h.cost
}
