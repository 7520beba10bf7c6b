package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	argon2idID    = "argon2id"
	minMemoryKB   = 8 * 1024
	minSaltLength = 16
	minKeyLength  = 16
)

// Argon2Config holds argon2id cost parameters used when hashing.
type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the parameters new hashes are produced with.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return errors.New("argon2 memory must be >= 8192 KB")
	case c.Time < 1:
		return errors.New("argon2 time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("argon2 parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return errors.New("argon2 salt length must be >= 16")
	case c.KeyLength < minKeyLength:
		return errors.New("argon2 key length must be >= 16")
	}
	return nil
}

type argon2Scheme struct {
	config Argon2Config
}

func (s argon2Scheme) hash(password string) (string, error) {
	salt := make([]byte, s.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	digest := argon2.IDKey([]byte(password), salt, s.config.Time, s.config.Memory, s.config.Parallelism, s.config.KeyLength)
	return phc{
		memory:      s.config.Memory,
		time:        s.config.Time,
		parallelism: s.config.Parallelism,
		salt:        salt,
		digest:      digest,
	}.String(), nil
}

func (s argon2Scheme) verify(password, encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.digest)))
	return subtle.ConstantTimeCompare(computed, parsed.digest) == 1, nil
}

// weaker reports whether encoded was produced with cheaper parameters than
// the configured ones.
func (s argon2Scheme) weaker(encoded string) (bool, error) {
	parsed, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return parsed.memory < s.config.Memory ||
		parsed.time < s.config.Time ||
		parsed.parallelism < s.config.Parallelism ||
		uint32(len(parsed.digest)) != s.config.KeyLength, nil
}
