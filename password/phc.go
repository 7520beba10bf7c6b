package password

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	errPHCFormat  = errors.New("invalid PHC format")
	errPHCAlg     = errors.New("unsupported PHC algorithm")
	errPHCVersion = errors.New("unsupported argon2 version")
	errPHCParams  = errors.New("invalid argon2 parameters")
	errPHCSalt    = errors.New("invalid argon2 salt")
	errPHCDigest  = errors.New("invalid argon2 digest")
)

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$digest string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	digest      []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idID, argon2.Version, p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.digest),
	)
}

func parsePHC(encoded string) (phc, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return phc{}, errPHCFormat
	}
	if fields[1] != argon2idID {
		return phc{}, errPHCAlg
	}

	version, ok := strings.CutPrefix(fields[2], "v=")
	if !ok {
		return phc{}, errPHCVersion
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return phc{}, errPHCVersion
	}

	var out phc
	if err := out.parseParams(fields[3]); err != nil {
		return phc{}, err
	}

	salt, err := decodeB64(fields[4])
	if err != nil || len(salt) < minSaltLength {
		return phc{}, errPHCSalt
	}
	digest, err := decodeB64(fields[5])
	if err != nil || len(digest) < minKeyLength {
		return phc{}, errPHCDigest
	}
	out.salt = salt
	out.digest = digest
	return out, nil
}

func (p *phc) parseParams(field string) error {
	seen := 0
	for _, pair := range strings.Split(field, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return errPHCParams
		}
		switch name {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < minMemoryKB {
				return errPHCParams
			}
			p.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < 1 {
				return errPHCParams
			}
			p.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < 1 {
				return errPHCParams
			}
			p.parallelism = uint8(v)
		default:
			return errPHCParams
		}
		seen++
	}
	if seen != 3 || p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return errPHCParams
	}
	return nil
}

// decodeB64 accepts both padded and unpadded standard base64; hashes written
// by other libraries differ on padding.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
