package password

// Verifier checks a plaintext password against one hash family.
type Verifier interface {
	Recognizes(encoded string) bool
	Verify(plain, encoded string) (bool, error)
}

// Hasher is what the engine needs from password hashing.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
	NeedsUpgrade(encoded string) (bool, error)
}

// Chain hashes with Primary and verifies with whichever of Primary or Legacy
// recognises the stored hash.
type Chain struct {
	Primary *Argon2
	Legacy  []Verifier
}

// NewChain returns a Chain that accepts argon2id and legacy bcrypt hashes.
func NewChain(primary *Argon2) *Chain {
	return &Chain{
		Primary: primary,
		Legacy:  []Verifier{Bcrypt{}},
	}
}

// Hash always uses the primary hasher.
func (c *Chain) Hash(plain string) (string, error) {
	return c.Primary.Hash(plain)
}

// Verify dispatches on the hash prefix.
func (c *Chain) Verify(plain, encoded string) (bool, error) {
	if c.Primary.Recognizes(encoded) {
		return c.Primary.Verify(plain, encoded)
	}
	for _, v := range c.Legacy {
		if v.Recognizes(encoded) {
			return v.Verify(plain, encoded)
		}
	}
	return false, ErrUnsupportedHash
}

// NeedsUpgrade is true for any legacy hash and for argon2id hashes with
// outdated parameters.
func (c *Chain) NeedsUpgrade(encoded string) (bool, error) {
	if c.Primary.Recognizes(encoded) {
		return c.Primary.NeedsUpgrade(encoded)
	}
	for _, v := range c.Legacy {
		if v.Recognizes(encoded) {
			return true, nil
		}
	}
	return false, ErrUnsupportedHash
}
