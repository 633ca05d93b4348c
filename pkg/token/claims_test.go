package token

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signRaw signs an arbitrary claim set without the codec's exp
// handling, so tests can produce expired or malformed tokens.
func signRaw(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func bearer(token string) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return header
}

func TestFromHeaderMissing(t *testing.T) {
	codec := NewCodec([]byte("secret"), time.Hour)

	_, err := FromHeader(http.Header{}, codec)
	assert.ErrorIs(t, err, ErrNoAuthHeader)
}

func TestFromHeaderMalformed(t *testing.T) {
	codec := NewCodec([]byte("secret"), time.Hour)

	for _, value := range []string{"token", "Basic dXNlcjpwdw==", "Bearer a b"} {
		header := http.Header{}
		header.Set("Authorization", value)
		_, err := FromHeader(header, codec)
		assert.ErrorIs(t, err, ErrBadAuthHeader, "header %q", value)
	}
}

func TestFromHeaderExpired(t *testing.T) {
	secret := []byte("secret")
	codec := NewCodec(secret, time.Hour)

	token := signRaw(t, secret, jwt.MapClaims{"repo": "testing", "exp": "1"})
	_, err := FromHeader(bearer(token), codec)
	assert.ErrorIs(t, err, ErrTokenExpired)

	token = signRaw(t, secret, jwt.MapClaims{"repo": "testing", "exp": "not-a-number"})
	_, err = FromHeader(bearer(token), codec)
	assert.ErrorIs(t, err, ErrTokenExpired, "non-numeric exp counts as expired")
}

func TestFromHeaderMissingExp(t *testing.T) {
	secret := []byte("secret")
	codec := NewCodec(secret, time.Hour)

	token := signRaw(t, secret, jwt.MapClaims{"repo": "testing"})
	_, err := FromHeader(bearer(token), codec)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestFromHeaderValid(t *testing.T) {
	codec := NewCodec([]byte("secret"), time.Hour)

	signed, err := codec.Encode(map[string]string{"repo": "testing", "user": "user1"})
	require.NoError(t, err)

	claims, err := FromHeader(bearer(signed), codec)
	require.NoError(t, err)

	repo, err := claims.Claim("repo")
	require.NoError(t, err)
	assert.Equal(t, "testing", repo)

	_, err = claims.Claim("operation")
	assert.EqualError(t, err, "Claim operation not found in token")
}

func TestFromHeaderValidSignatureExpired(t *testing.T) {
	codec := NewCodec([]byte("secret"), -time.Hour)

	signed, err := codec.Encode(map[string]string{"repo": "testing"})
	require.NoError(t, err)

	_, err = FromHeader(bearer(signed), codec)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
