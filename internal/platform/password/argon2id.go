package password

import "github.com/alexedwards/argon2id"

// Hasher wraps argon2id behind the domain.PasswordHasher capability.
type Hasher struct {
	params *argon2id.Params
}

func NewHasher() *Hasher {
	return &Hasher{params: argon2id.DefaultParams}
}

func (h *Hasher) Hash(password string) (string, error) {
	return argon2id.CreateHash(password, h.params)
}

func (h *Hasher) Verify(password, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(password, hash)
}
