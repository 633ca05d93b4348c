package lfs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wzshiming/lfsd/pkg/token"
)

// linkTTL is the sole transfer-level timeout: presigned links of both
// strategies live for one hour.
const linkTTL = 3600

// CustomSigner signs proxy-mode transfer links. Both directions point
// back at this server's public host and carry a short-lived link token
// bound to exactly one (repo, oid, operation) triple.
type CustomSigner struct {
	host  string
	codec *token.Codec
}

// NewCustomSigner returns a signer whose links target host, an
// upstream reverse proxy expected to rewrite
// <host>/<repo>/objects/access/<oid> to this server's access route.
func NewCustomSigner(host string, codec *token.Codec) *CustomSigner {
	return &CustomSigner{host: host, codec: codec}
}

func (s *CustomSigner) link(repo, oid string) string {
	return fmt.Sprintf("%s/%s/objects/access/%s", s.host, repo, oid)
}

func (s *CustomSigner) action(op Operation, repo, oid string) (*ObjectAction, error) {
	signed, err := s.codec.Encode(map[string]string{
		"operation": string(op),
		"oid":       oid,
		"repo":      repo,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &ObjectAction{
		Href:      s.link(repo, oid),
		Header:    map[string]string{"Authorization": "Bearer " + signed},
		ExpiresIn: linkTTL,
	}, nil
}

// GetPresignedLink returns a download action against the proxy
// endpoint.
func (s *CustomSigner) GetPresignedLink(ctx context.Context, meta *MetaResult) (*ObjectAction, error) {
	return s.action(Download, meta.Repo, meta.Oid)
}

// PostPresignedLink returns an upload action against the proxy
// endpoint. This strategy has no verify step.
func (s *CustomSigner) PostPresignedLink(ctx context.Context, meta *MetaResult, size uint32) (*ObjectAction, *ObjectAction, error) {
	upload, err := s.action(Upload, meta.Repo, meta.Oid)
	if err != nil {
		return nil, nil, err
	}
	return upload, nil, nil
}

// CheckLink decodes the link token from the Authorization header and
// asserts that repo, oid and operation all match the request exactly.
// Expired link tokens fail the check.
func (s *CustomSigner) CheckLink(ctx context.Context, repo, oid string, header http.Header, op Operation) bool {
	claims, err := token.FromHeader(header, s.codec)
	if err != nil {
		return false
	}

	tokenRepo, err := claims.Claim("repo")
	if err != nil {
		return false
	}
	tokenOid, err := claims.Claim("oid")
	if err != nil {
		return false
	}
	tokenOp, err := claims.Claim("operation")
	if err != nil {
		return false
	}
	return tokenRepo == repo && tokenOid == oid && tokenOp == string(op)
}
