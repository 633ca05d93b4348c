package token

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs"
)

// Envelope failures. The HTTP layer renders every one of these as 401.
var (
	ErrNoAuthHeader  = errs.New("Authorization header not found")
	ErrBadAuthHeader = errs.New("Failed to parse Authorization header")
	ErrTokenExpired  = errs.New("Token expired")
)

// Claims is a decoded and non-expired bearer token.
type Claims struct {
	claims map[string]string
}

// FromHeader extracts the Bearer token from the Authorization header,
// decodes it through codec, and rejects expired tokens. A missing or
// unreadable "exp" claim counts as expired.
func FromHeader(header http.Header, codec *Codec) (*Claims, error) {
	value := header.Get("Authorization")
	if value == "" {
		return nil, ErrNoAuthHeader
	}

	parts := strings.Fields(value)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, ErrBadAuthHeader
	}

	claims, err := codec.Decode(parts[1])
	if err != nil {
		return nil, err
	}

	c := &Claims{claims: claims}
	if c.expired(time.Now()) {
		return nil, ErrTokenExpired
	}
	return c, nil
}

func (c *Claims) expired(now time.Time) bool {
	exp, ok := c.claims["exp"]
	if !ok {
		return true
	}
	seconds, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return true
	}
	return seconds <= now.Unix()
}

// Claim returns the named claim.
func (c *Claims) Claim(name string) (string, error) {
	value, ok := c.claims[name]
	if !ok {
		return "", errs.New("Claim %s not found in token", name)
	}
	return value, nil
}
