package lfs

import (
	"context"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Config selects the bucket and the two endpoints of an
// S3-compatible store: the internal one used for metadata and proxy
// transfers, and the public one clients can actually reach, used only
// for presigning. The public pair defaults to the internal pair.
type S3Config struct {
	Bucket         string
	AccessKey      string
	SecretKey      string
	Region         string
	Endpoint       string
	PublicRegion   string
	PublicEndpoint string
}

// S3Storage serves all three storage capabilities from one bucket:
// HEAD for meta, presigned GET/PUT links, and direct get/put when
// proxying.
type S3Storage struct {
	s3       *s3.S3
	signS3   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	expire   time.Duration
}

// NewS3Storage builds the internal and public-facing sessions.
func NewS3Storage(cfg S3Config) *S3Storage {
	if cfg.PublicEndpoint == "" {
		cfg.PublicEndpoint = cfg.Endpoint
	}
	if cfg.PublicRegion == "" {
		cfg.PublicRegion = cfg.Region
	}

	creds := credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")

	sess := session.Must(session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(cfg.Region),
		Credentials:      creds,
		S3ForcePathStyle: aws.Bool(true),
	}))
	signSess := session.Must(session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.PublicEndpoint),
		Region:           aws.String(cfg.PublicRegion),
		Credentials:      creds,
		S3ForcePathStyle: aws.Bool(true),
	}))

	client := s3.New(sess)
	return &S3Storage{
		s3:       client,
		signS3:   s3.New(signSess),
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   cfg.Bucket,
		expire:   linkTTL * time.Second,
	}
}

func objectKey(repo, oid string) string {
	return path.Join(repo, "objects", oid)
}

// GetMetaResult issues a HEAD on the object key. Absent objects,
// backend errors, and absent or negative content lengths all read as
// not-found. Object-store keys are not filesystem paths, but the oid
// guard is kept for uniformity with the local backend.
func (s *S3Storage) GetMetaResult(ctx context.Context, repo, oid string) *MetaResult {
	if !oidPattern.MatchString(oid) {
		return notFound(repo, oid)
	}

	output, err := s.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(repo, oid)),
	})
	if err != nil || output.ContentLength == nil || *output.ContentLength < 0 {
		return notFound(repo, oid)
	}
	return found(repo, oid, uint64(*output.ContentLength))
}

// GetPresignedLink presigns a GET against the public endpoint. No
// Authorization header is attached; the object store validates the
// signature itself.
func (s *S3Storage) GetPresignedLink(ctx context.Context, meta *MetaResult) (*ObjectAction, error) {
	req, _ := s.signS3.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(meta.Repo, meta.Oid)),
	})
	href, err := req.Presign(s.expire)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &ObjectAction{Href: href, ExpiresIn: linkTTL}, nil
}

// PostPresignedLink presigns a PUT against the public endpoint.
func (s *S3Storage) PostPresignedLink(ctx context.Context, meta *MetaResult, size uint32) (*ObjectAction, *ObjectAction, error) {
	req, _ := s.signS3.PutObjectRequest(&s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(meta.Repo, meta.Oid)),
	})
	href, err := req.Presign(s.expire)
	if err != nil {
		return nil, nil, Error.Wrap(err)
	}
	return &ObjectAction{Href: href, ExpiresIn: linkTTL}, nil, nil
}

// CheckLink always fails: in this strategy the proxy endpoints are not
// mounted and link validation belongs to the object store.
func (s *S3Storage) CheckLink(ctx context.Context, repo, oid string, header http.Header, op Operation) bool {
	return false
}

// Get opens the object for streaming along with its stored content
// type. The caller closes the returned body.
func (s *S3Storage) Get(ctx context.Context, repo, oid string) (io.ReadCloser, string, error) {
	output, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(repo, oid)),
	})
	if err != nil {
		return nil, "", Error.Wrap(err)
	}

	contentType := "application/octet-stream"
	if output.ContentType != nil && *output.ContentType != "" {
		contentType = *output.ContentType
	}
	return output.Body, contentType, nil
}

// Post streams the object to the bucket with its content type. The
// upload manager chunks the body, so arbitrarily large objects pass
// through without buffering whole.
func (s *S3Storage) Post(ctx context.Context, repo, oid string, body io.Reader, contentType string) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(repo, oid)),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	return Error.Wrap(err)
}
