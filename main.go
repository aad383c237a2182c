// Package main is the entry point for gallerystore.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fclairamb/gallerystore/internal/apperrors"
	"github.com/fclairamb/gallerystore/internal/cmd"
)

// Exit codes.
const (
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.NewApp().Run(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err)
		if errors.Is(err, apperrors.ErrArgumentRequired) || errors.Is(err, apperrors.ErrInvalidConfig) {
			return exitUsage
		}
		return exitFailure
	}

	return 0
}
