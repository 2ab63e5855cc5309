package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/breadworks/bakeops/internal/config"
	"github.com/breadworks/bakeops/internal/domain"
)

// seedAdmin bootstraps the first admin account when SEED_ADMIN_USERNAME is
// set and no actor with that username exists. Subsequent starts are no-ops,
// so the variables can stay in the deployment environment.
func seedAdmin(ctx context.Context, store domain.Store, cfg config.Config) error {
	if cfg.SeedAdminUsername == "" {
		return nil
	}
	if len(cfg.SeedAdminPassword) < 8 {
		return fmt.Errorf("op=seedAdmin: SEED_ADMIN_PASSWORD must be at least 8 chars")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.SeedAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("op=seedAdmin: %w", err)
	}
	return store.WithTx(ctx, func(ctx domain.Context, tx domain.StoreTx) error {
		_, found, err := tx.Actors().FindByUsername(ctx, cfg.SeedAdminUsername)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		admin := domain.Actor{
			Username:     cfg.SeedAdminUsername,
			PasswordHash: string(hash),
			Role:         domain.RoleAdmin,
			IsActive:     true,
			HireDate:     time.Now().UTC(),
		}
		id, err := tx.Actors().Create(ctx, &admin)
		if err != nil {
			return err
		}
		slog.Info("seeded admin account", slog.Int64("actor_id", id), slog.String("username", cfg.SeedAdminUsername))
		return nil
	})
}
