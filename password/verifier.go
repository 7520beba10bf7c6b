package password

import (
	"errors"
	"strings"
	"sync"
)

// ErrUnsupportedHash is returned for stored hashes in an unknown format.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// Verifier checks plaintext passwords against stored argon2id (PHC) or
// bcrypt hashes and produces new argon2id hashes.
type Verifier struct {
	argon argon2Scheme

	dummyOnce sync.Once
	dummy     string
}

// NewVerifier validates cfg and returns a Verifier.
func NewVerifier(cfg Argon2Config) (*Verifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Verifier{argon: argon2Scheme{config: cfg}}, nil
}

// Hash returns an argon2id PHC string for password.
func (v *Verifier) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return v.argon.hash(password)
}

// Verify reports whether password matches encoded. A malformed or unknown
// hash is an error, never a match.
func (v *Verifier) Verify(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$"+argon2idID+"$"):
		return v.argon.verify(password, encoded)
	case isBcrypt(encoded):
		return verifyBcrypt(password, encoded)
	default:
		return false, ErrUnsupportedHash
	}
}

// VerifyDummy burns the same work as a real argon2id verification. Login
// calls it for unknown usernames so response timing does not reveal which
// accounts exist.
func (v *Verifier) VerifyDummy(password string) {
	v.dummyOnce.Do(func() {
		v.dummy, _ = v.argon.hash("dummy-password-for-timing")
	})
	if v.dummy != "" {
		_, _ = v.argon.verify(password, v.dummy)
	}
}

// NeedsRehash reports whether encoded should be replaced with a fresh
// argon2id hash on the next successful login.
func (v *Verifier) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	weaker, err := v.argon.weaker(encoded)
	return err != nil || weaker
}
