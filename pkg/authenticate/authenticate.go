// Package authenticate implements the SSH-side token helper: it asks
// an external authorization oracle whether the invoking user may act
// on a repository and, if so, mints a short-lived repo token.
package authenticate

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/zeebo/errs"

	"github.com/wzshiming/lfsd/pkg/token"
)

// Error wraps internal helper failures. Its text never reaches the
// end user.
var Error = errs.Class("authenticate")

// Sentinels with user-facing text.
var (
	ErrUnauthorized     = errs.New("Unauthorized")
	ErrInvalidOperation = errs.New("Invalid operation")
)

// Oracle decides whether user may access repo at the given gitolite
// access level, "R" or "W".
type Oracle func(ctx context.Context, repo, user, access string) error

// GitoliteOracle shells out to gitolite. A non-zero exit means the
// user lacks the requested access.
func GitoliteOracle(ctx context.Context, repo, user, access string) error {
	cmd := exec.CommandContext(ctx, "gitolite", "access", "-q", repo, user, access)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return ErrUnauthorized
		}
		return Error.Wrap(err)
	}
	return nil
}

// AccessLevel maps an LFS operation to the gitolite access letter.
func AccessLevel(operation string) (string, error) {
	switch operation {
	case "download":
		return "R", nil
	case "upload":
		return "W", nil
	default:
		return "", ErrInvalidOperation
	}
}

// Response is printed on stdout for git-lfs to consume.
type Response struct {
	Href      string            `json:"href"`
	Header    map[string]string `json:"header"`
	ExpiresIn uint              `json:"expires_in"`
}

// Authenticate runs the full helper flow: check the oracle, mint the
// token, shape the response. The user is taken from the GL_USER
// environment variable gitolite sets for SSH commands.
func Authenticate(ctx context.Context, cfg *Config, oracle Oracle, repo, operation string) (*Response, error) {
	access, err := AccessLevel(operation)
	if err != nil {
		return nil, err
	}

	user := os.Getenv("GL_USER")
	if err := oracle(ctx, repo, user, access); err != nil {
		return nil, err
	}

	codec := token.NewCodec([]byte(cfg.Secret), cfg.ExpiresIn)
	signed, err := codec.Encode(map[string]string{
		"repo":      repo,
		"user":      user,
		"operation": operation,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return &Response{
		Href:      cfg.BaseURL + repo,
		Header:    map[string]string{"Authorization": "Bearer " + signed},
		ExpiresIn: uint(cfg.ExpiresIn.Seconds()),
	}, nil
}
