package lfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps objects on the local filesystem, one file per
// object under <root>/<repo>/objects/<oid>, with the declared content
// type alongside under <root>/<repo>/mime-types/<oid>.mime.
type LocalStorage struct {
	root string
}

// NewLocalStorage returns a store rooted at root. The directory tree
// is created lazily on the first upload.
func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{root: root}
}

func (s *LocalStorage) objectPath(repo, oid string) string {
	return filepath.Join(s.root, repo, "objects", oid)
}

func (s *LocalStorage) mimeTypePath(repo, oid string) string {
	return filepath.Join(s.root, repo, "mime-types", oid+".mime")
}

// GetMetaResult stats the object file. Oids failing the pattern guard
// never touch the disk.
func (s *LocalStorage) GetMetaResult(ctx context.Context, repo, oid string) *MetaResult {
	if !oidPattern.MatchString(oid) {
		return notFound(repo, oid)
	}
	info, err := os.Stat(s.objectPath(repo, oid))
	if err != nil || info.IsDir() {
		return notFound(repo, oid)
	}
	return found(repo, oid, uint64(info.Size()))
}

// Get opens the object for streaming and reads the content type
// recorded at upload time. Objects stored out of band fall back to
// octet-stream. The caller closes the returned body.
func (s *LocalStorage) Get(ctx context.Context, repo, oid string) (io.ReadCloser, string, error) {
	if !oidPattern.MatchString(oid) {
		return nil, "", Error.Wrap(os.ErrNotExist)
	}

	file, err := os.Open(s.objectPath(repo, oid))
	if err != nil {
		return nil, "", Error.Wrap(err)
	}

	contentType := "application/octet-stream"
	if mime, err := os.ReadFile(s.mimeTypePath(repo, oid)); err == nil {
		if trimmed := strings.TrimSpace(string(mime)); trimmed != "" {
			contentType = trimmed
		}
	}
	return file, contentType, nil
}

// Post streams the object bytes to disk and remembers the declared
// content type, creating parent directories as needed.
func (s *LocalStorage) Post(ctx context.Context, repo, oid string, body io.Reader, contentType string) error {
	if !oidPattern.MatchString(oid) {
		return Error.Wrap(os.ErrNotExist)
	}

	objectPath := s.objectPath(repo, oid)
	mimePath := s.mimeTypePath(repo, oid)
	for _, dir := range []string{filepath.Dir(objectPath), filepath.Dir(mimePath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Error.Wrap(err)
		}
	}

	if err := os.WriteFile(mimePath, []byte(contentType), 0o644); err != nil {
		return Error.Wrap(err)
	}

	file, err := os.Create(objectPath)
	if err != nil {
		return Error.Wrap(err)
	}
	if _, err := io.Copy(file, body); err != nil {
		_ = file.Close()
		return Error.Wrap(err)
	}
	return Error.Wrap(file.Close())
}
