package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=19456,t=2,p=1$"))
	assert.NoError(t, VerifyPassword("correct horse battery staple", hash))
	assert.ErrorIs(t, VerifyPassword("wrong password", hash), ErrMismatchedPassword)

	again, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salts should differ")
}

func TestVerifyPasswordInvalidHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
		want error
	}{
		{name: "empty", hash: "", want: ErrInvalidHash},
		{name: "bcrypt", hash: "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW", want: ErrInvalidHash},
		{name: "other_version", hash: "$argon2id$v=16$m=19456,t=2,p=1$c2FsdA$aGFzaA", want: ErrIncompatibleVersion},
		{name: "broken_params", hash: "$argon2id$v=19$m=x,t=2,p=1$c2FsdA$aGFzaA", want: ErrInvalidHash},
		{name: "broken_salt", hash: "$argon2id$v=19$m=19456,t=2,p=1$!!!$aGFzaA", want: ErrInvalidHash},
		{name: "other_variant", hash: "$argon2i$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA", want: ErrInvalidHash},
		{name: "zero_rounds", hash: "$argon2id$v=19$m=19456,t=0,p=1$c2FsdA$aGFzaA", want: ErrInvalidHash},
		{name: "zero_threads", hash: "$argon2id$v=19$m=19456,t=2,p=0$c2FsdA$aGFzaA", want: ErrInvalidHash},
		{name: "empty_key", hash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$", want: ErrInvalidHash},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.ErrorIs(t, VerifyPassword("password", test.hash), test.want)
			})
		})
	}
}
