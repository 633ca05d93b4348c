// Package token signs and verifies the HMAC-SHA256 JWTs that authorize
// LFS requests. Claims are a flat string-to-string map. The codec owns
// writing the "exp" claim but never checks it: expiry is enforced by
// whoever unwraps the token.
package token

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zeebo/errs"
)

// Error wraps signing and verification failures.
var Error = errs.Class("token")

// Codec signs and verifies tokens with a shared secret. Two instances
// exist per deployment: one for repo tokens and one for transfer link
// tokens, each with an independent secret and TTL so compromising one
// cannot forge the other.
type Codec struct {
	secret    []byte
	expiresIn time.Duration
}

// NewCodec returns a codec for the given secret. The secret is any
// byte string; expiresIn is the lifetime written into every token.
func NewCodec(secret []byte, expiresIn time.Duration) *Codec {
	return &Codec{secret: secret, expiresIn: expiresIn}
}

// Encode signs the claims, overwriting any caller-supplied "exp" with
// now + the configured TTL, expressed as Unix seconds in decimal.
func (c *Codec) Encode(claims map[string]string) (string, error) {
	mc := make(jwt.MapClaims, len(claims)+1)
	for name, value := range claims {
		mc[name] = value
	}
	mc["exp"] = strconv.FormatInt(time.Now().Add(c.expiresIn).Unix(), 10)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(c.secret)
	if err != nil {
		return "", Error.Wrap(err)
	}
	return signed, nil
}

// Decode verifies the signature and returns the claim map. It does not
// check expiry.
func (c *Codec) Decode(token string) (map[string]string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)

	mc := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(token, mc, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}); err != nil {
		return nil, Error.Wrap(err)
	}

	claims := make(map[string]string, len(mc))
	for name, value := range mc {
		text, ok := value.(string)
		if !ok {
			return nil, Error.New("claim %s is not a string", name)
		}
		claims[name] = text
	}
	return claims, nil
}
