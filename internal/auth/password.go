package auth

import (
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
)

// passwordParams are the Argon2id parameters of newly hashed passwords.
var passwordParams = &argon2id.Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// ErrInvalidHash is returned for hashes that are not Argon2id PHC strings.
var ErrInvalidHash = argon2id.ErrInvalidHash

// ErrIncompatibleVersion is returned for hashes produced by another Argon2 version.
var ErrIncompatibleVersion = argon2id.ErrIncompatibleVersion

// ErrMismatchedPassword is returned when the password does not match the hash.
var ErrMismatchedPassword = errors.New("password does not match")

// HashPassword returns an Argon2id PHC string such as
// $argon2id$v=19$m=19456,t=2,p=1$<salt>$<hash>.
func HashPassword(password string) (string, error) {
	hash, err := argon2id.CreateHash(password, passwordParams)
	if err != nil {
		return "", fmt.Errorf("in internal/auth/password.go/HashPassword(): error while `argon2id.CreateHash()` calling: %w", err)
	}

	return hash, nil
}

// VerifyPassword checks password against an encoded Argon2id hash.
// The parameters stored in the hash are used, so older hashes keep working.
func VerifyPassword(password, encodedHash string) error {
	params, _, key, err := argon2id.DecodeHash(encodedHash)
	if err != nil {
		return invalidHash(err)
	}

	// argon2.IDKey panics on zero rounds or zero threads.
	if params.Iterations == 0 || params.Parallelism == 0 || len(key) == 0 {
		return ErrInvalidHash
	}

	match, err := argon2id.ComparePasswordAndHash(password, encodedHash)
	if err != nil {
		return invalidHash(err)
	}
	if !match {
		return ErrMismatchedPassword
	}

	return nil
}

func invalidHash(err error) error {
	if errors.Is(err, ErrInvalidHash) || errors.Is(err, ErrIncompatibleVersion) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrInvalidHash, err)
}
