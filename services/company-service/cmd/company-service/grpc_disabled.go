//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/slotbook/slotbook/services/company-service/internal/storage"
)

func startGrpcServer(_ context.Context, _ *slog.Logger, _ *storage.Repository) error {
	return nil
}
