package authenticate

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultExpiresIn = 30 * time.Minute

// Config holds the helper's settings, read from a .env file sitting
// next to the executable plus the process environment.
type Config struct {
	// BaseURL is the LFS server endpoint the href points at; the repo
	// name is appended verbatim.
	BaseURL string
	// Secret signs the minted repo tokens. It must match the server's
	// JWT secret.
	Secret string
	// ExpiresIn is the minted token's lifetime.
	ExpiresIn time.Duration
}

// LoadConfig reads the .env beside the running executable, then the
// environment. A missing .env is fine when the environment already
// carries the settings.
func LoadConfig() (*Config, error) {
	if executable, err := os.Executable(); err == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(executable), ".env"))
	}

	secretFile := os.Getenv("JWT_SECRET_FILE")
	if secretFile == "" {
		return nil, Error.New("JWT_SECRET_FILE is not set")
	}
	secret, err := os.ReadFile(secretFile)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	expiresIn := defaultExpiresIn
	if raw := strings.TrimSpace(os.Getenv("EXPIRES_IN")); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return nil, Error.New("EXPIRES_IN must be a positive number of seconds, got %q", raw)
		}
		expiresIn = time.Duration(seconds) * time.Second
	}

	return &Config{
		BaseURL:   os.Getenv("BASE_URL"),
		Secret:    strings.TrimSpace(string(secret)),
		ExpiresIn: expiresIn,
	}, nil
}
