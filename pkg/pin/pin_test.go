package pin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastParams = Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestHashVerify(t *testing.T) {
	hash, err := Hash("4321", fastParams)
	require.NoError(t, err)

	ok, err := Verify(hash, "4321")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(hash, "1234")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyBadHash(t *testing.T) {
	for _, h := range []string{"", "plain", "$argon2i$v=19$m=1,t=1,p=1$AA$AA", "$argon2id$v=1$m=1,t=1,p=1$AA$AA"} {
		_, err := Verify(h, "4321")
		assert.Error(t, err, h)
	}
}

func TestVerifyAny(t *testing.T) {
	h1, err := Hash("1111", fastParams)
	require.NoError(t, err)
	h2, err := Hash("2222", fastParams)
	require.NoError(t, err)

	assert.True(t, VerifyAny([]string{"broken", h1, h2}, "2222"))
	assert.False(t, VerifyAny([]string{h1, h2}, "3333"))
	assert.False(t, VerifyAny(nil, "1111"))
}
