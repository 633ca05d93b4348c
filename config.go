package lfsd

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs"
)

// ErrConfig wraps configuration failures.
var ErrConfig = errs.Class("config")

// Config selects the server composition: which link signer strategy,
// which storage backend, and optionally which lock store.
type Config struct {
	// Signer selects object-store presigning; false means proxy mode,
	// where transfers pass through this server.
	Signer bool
	// SBS selects the S3-compatible storage backend; false means local
	// filesystem storage.
	SBS bool
	// Locks names the lock store backend, "pg" or "bolt". Empty leaves
	// the lock API unimplemented.
	Locks string
	// Addr is the listening address.
	Addr string
}

// FromArgs parses the positional form <signer|proxy> <fs|sbs>
// [locks <pg|bolt>]. No arguments means proxy mode on local storage.
func FromArgs(args []string) (*Config, error) {
	cfg := &Config{Addr: "0.0.0.0:3000"}

	switch len(args) {
	case 0:
		return cfg, nil
	case 2, 4:
	default:
		return nil, ErrConfig.New("expected <signer|proxy> <fs|sbs> [locks <pg|bolt>], got %q", strings.Join(args, " "))
	}

	switch args[0] {
	case "signer":
		cfg.Signer = true
	case "proxy":
	default:
		return nil, ErrConfig.New("unknown signer strategy %q, expected signer or proxy", args[0])
	}

	switch args[1] {
	case "sbs":
		cfg.SBS = true
	case "fs":
	default:
		return nil, ErrConfig.New("unknown storage backend %q, expected fs or sbs", args[1])
	}

	if len(args) == 4 {
		if args[2] != "locks" {
			return nil, ErrConfig.New("expected literal \"locks\", got %q", args[2])
		}
		switch args[3] {
		case "pg", "bolt":
			cfg.Locks = args[3]
		default:
			return nil, ErrConfig.New("unknown lock store %q, expected pg or bolt", args[3])
		}
	}
	return cfg, nil
}

// envValue returns the trimmed environment value or a fallback.
func envValue(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

// envFileValue resolves a *_FILE variable: the variable names a file
// whose trimmed contents supply the value.
func envFileValue(name string) (string, error) {
	path := os.Getenv(name)
	if path == "" {
		return "", ErrConfig.New("%s is not set", name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ErrConfig.Wrap(err)
	}
	return strings.TrimSpace(string(data)), nil
}

// envSeconds reads a duration expressed as whole seconds.
func envSeconds(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, ErrConfig.New("%s must be a non-negative number of seconds, got %q", name, raw)
	}
	return time.Duration(seconds) * time.Second, nil
}
