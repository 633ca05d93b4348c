package lfsd

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/wzshiming/lfsd/pkg/lfs"
	"github.com/wzshiming/lfsd/pkg/locks"
	"github.com/wzshiming/lfsd/pkg/token"
)

const (
	defaultTokenTTL  = 30 * time.Minute
	defaultSignerTTL = time.Hour
)

// NewHandlerFromConfig assembles the handler selected by cfg from the
// environment.
func NewHandlerFromConfig(ctx context.Context, log *zap.Logger, cfg *Config) (*Handler, error) {
	secret, err := envFileValue("JWT_SECRET_FILE")
	if err != nil {
		return nil, err
	}
	tokenTTL, err := envSeconds("JWT_EXPIRES_IN", defaultTokenTTL)
	if err != nil {
		return nil, err
	}
	codec := token.NewCodec([]byte(secret), tokenTTL)

	var (
		meta   lfs.MetaRequester
		signer lfs.LinkSigner
		proxy  lfs.Proxy
	)
	fsRoot := envValue("FS_ROOT_PATH", "/tmp/lfs")

	if cfg.SBS {
		store, err := newS3StorageFromEnv()
		if err != nil {
			return nil, err
		}
		meta, signer, proxy = store, store, store
	} else {
		if cfg.Signer {
			return nil, ErrConfig.New("signer mode requires the sbs backend")
		}
		store := lfs.NewLocalStorage(fsRoot)
		meta, proxy = store, store
	}

	if !cfg.Signer {
		signer, err = newCustomSignerFromEnv()
		if err != nil {
			return nil, err
		}
	}

	opts := []Option{}
	if !cfg.Signer {
		opts = append(opts, WithProxy(proxy))
	}

	switch cfg.Locks {
	case "pg":
		password, err := envFileValue("DATABASE_PASSWORD_FILE")
		if err != nil {
			return nil, err
		}
		store, err := locks.OpenPostgres(ctx, locks.PostgresConfig{
			Host:     envValue("DATABASE_HOST", "localhost"),
			Database: envValue("DATABASE_NAME", "lfs"),
			User:     envValue("DATABASE_USER", "lfs"),
			Password: password,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLocks(store))
	case "bolt":
		path := envValue("LOCKS_BOLT_PATH", filepath.Join(fsRoot, "locks.db"))
		store, err := locks.OpenBolt(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLocks(store))
	case "":
	default:
		return nil, ErrConfig.New("unknown lock store %q", cfg.Locks)
	}

	return NewHandler(log, codec, meta, signer, opts...), nil
}

func newS3StorageFromEnv() (*lfs.S3Storage, error) {
	accessKey, err := envFileValue("SBS_ACCESS_KEY_FILE")
	if err != nil {
		return nil, err
	}
	secretKey, err := envFileValue("SBS_SECRET_KEY_FILE")
	if err != nil {
		return nil, err
	}
	return lfs.NewS3Storage(lfs.S3Config{
		Bucket:         envValue("SBS_BUCKET_NAME", "lfs"),
		AccessKey:      accessKey,
		SecretKey:      secretKey,
		Region:         envValue("SBS_REGION", "us-east-1"),
		Endpoint:       envValue("SBS_HOST", ""),
		PublicRegion:   envValue("SBS_PUBLIC_REGION", ""),
		PublicEndpoint: envValue("SBS_PUBLIC_HOST", ""),
	}), nil
}

func newCustomSignerFromEnv() (*lfs.CustomSigner, error) {
	host := envValue("CUSTOM_SIGNER_HOST", "")
	if host == "" {
		return nil, ErrConfig.New("CUSTOM_SIGNER_HOST is not set")
	}
	secret, err := envFileValue("CUSTOM_SIGNER_SECRET_FILE")
	if err != nil {
		return nil, err
	}
	ttl, err := envSeconds("CUSTOM_SIGNER_EXPIRES_IN", defaultSignerTTL)
	if err != nil {
		return nil, err
	}
	return lfs.NewCustomSigner(host, token.NewCodec([]byte(secret), ttl)), nil
}
