// Command lfsd serves the Git LFS batch, transfer and locking APIs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/handlers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	lfsd "github.com/wzshiming/lfsd"
	serverhttp "github.com/wzshiming/lfsd/server/http"
)

func main() {
	cmd := &cobra.Command{
		Use:           "lfsd [signer|proxy] [fs|sbs] [locks <pg|bolt>]",
		Short:         "Git LFS server with pluggable storage, signing and lock backends",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg, err := lfsd.FromArgs(args)
	if err != nil {
		return err
	}

	handler, err := lfsd.NewHandlerFromConfig(ctx, log, cfg)
	if err != nil {
		return err
	}

	chain := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(handler)
	chain = handlers.CompressHandler(chain)
	chain = serverhttp.LoggingMiddleware(log, chain)

	log.Info("listening",
		zap.String("addr", cfg.Addr),
		zap.Bool("signer", cfg.Signer),
		zap.Bool("sbs", cfg.SBS),
		zap.String("locks", cfg.Locks),
	)
	return serverhttp.Serve(ctx, cfg.Addr, chain)
}
