// Command git-lfs-authenticate mints repo-scoped LFS tokens for users
// arriving over SSH, after checking their access with gitolite. The
// Git host invokes it as a restricted shell command.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wzshiming/lfsd/pkg/authenticate"
)

func main() {
	log := fileLogger()
	defer func() { _ = log.Sync() }()

	cmd := &cobra.Command{
		Use:           "git-lfs-authenticate <repo> <operation> [oid]",
		Short:         "issue a Git LFS token after a gitolite access check",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 || len(args) > 3 {
				return errors.New("Wrong number of parameters")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), log, args[0], args[1])
		},
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, userMessage(err))
		os.Exit(1)
	}
}

// userMessage collapses internal errors into a terse message. Full
// detail only ever goes to the log file.
func userMessage(err error) string {
	switch {
	case err.Error() == "Wrong number of parameters":
		return err.Error()
	case errors.Is(err, authenticate.ErrInvalidOperation):
		return "Invalid operation"
	case errors.Is(err, authenticate.ErrUnauthorized):
		return "Unauthorized"
	default:
		return "Server error"
	}
}

func run(ctx context.Context, log *zap.Logger, repo, operation string) error {
	cfg, err := authenticate.LoadConfig()
	if err != nil {
		log.Error("config load failed", zap.Error(err))
		return err
	}

	resp, err := authenticate.Authenticate(ctx, cfg, authenticate.GitoliteOracle, repo, operation)
	if err != nil {
		log.Warn("authentication failed",
			zap.String("repo", repo),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(resp)
}

// fileLogger logs beside the executable; SSH invocations have no
// useful stderr for diagnostics. Failures fall back to a nop logger.
func fileLogger() *zap.Logger {
	executable, err := os.Executable()
	if err != nil {
		return zap.NewNop()
	}

	path := filepath.Join(filepath.Dir(executable), "log", "output.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zap.NewNop()
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
