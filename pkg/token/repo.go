package token

import "github.com/zeebo/errs"

// RepoPayload is the claim set carried by a repo-scoped token: which
// repository it grants access to, for whom, and at which level.
type RepoPayload struct {
	Repo      string
	User      string
	Operation string
}

// RepoPayloadFrom reads the repo, user and operation claims. The
// operation must be "upload" or "download".
func RepoPayloadFrom(claims *Claims) (*RepoPayload, error) {
	repo, err := claims.Claim("repo")
	if err != nil {
		return nil, err
	}
	user, err := claims.Claim("user")
	if err != nil {
		return nil, err
	}
	operation, err := claims.Claim("operation")
	if err != nil {
		return nil, err
	}
	if operation != "upload" && operation != "download" {
		return nil, errs.New("Invalid operation claim in token, must be upload or download")
	}
	return &RepoPayload{Repo: repo, User: user, Operation: operation}, nil
}

// HasAccess reports whether the token was issued for repo.
func (p *RepoPayload) HasAccess(repo string) bool {
	return p.Repo == repo
}

// HasWriteAccess reports whether the token allows uploads. Write
// tokens also allow downloads.
func (p *RepoPayload) HasWriteAccess() bool {
	return p.Operation == "upload"
}
