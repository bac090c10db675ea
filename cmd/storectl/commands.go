package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	"github.com/ariefcatur/go-storefront-orders/internal/store"
)

// operator acts for maintenance writes that go through admin-only services.
var operator = auth.Principal{ID: "storectl", Role: auth.RoleAdmin, Name: "storectl"}

func openStore(cmd *cobra.Command, migrate bool) (domain.Store, error) {
	return store.Open(cmd.Context(), cfg, migrate, log)
}

func closeStore(st domain.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.Close(ctx); err != nil {
		log.Warn("close store", zap.Error(err))
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if cfg.StoreDriver == config.DriverMemory {
		return fmt.Errorf("nothing to migrate for the memory driver")
	}
	st, err := openStore(cmd, true)
	if err != nil {
		return err
	}
	defer closeStore(st)
	log.Info("migration applied", zap.String("driver", cfg.StoreDriver))
	return nil
}

func runRecompute(cmd *cobra.Command, _ []string) error {
	st, err := openStore(cmd, false)
	if err != nil {
		return err
	}
	defer closeStore(st)

	start := time.Now()
	n, err := catalog.NewService(st, domain.NopPublisher{}, log).RecomputeAllRatings(cmd.Context(), workers)
	if err != nil {
		return err
	}
	log.Info("ratings recomputed", zap.Int("products", n), zap.Duration("took", time.Since(start)))
	return nil
}

var samples = []catalog.NewProduct{
	{Title: "Ceramic Mug", Description: "350ml stoneware mug", Price: 9.5, Quantity: 120},
	{Title: "Desk Lamp", Description: "LED lamp with warm and cool modes", Price: 34, Quantity: 40},
	{Title: "Notebook A5", Description: "Dotted, 160 pages", Price: 6.25, Quantity: 300},
	{Title: "Mechanical Keyboard", Description: "Tenkeyless, brown switches", Price: 89, Quantity: 15},
	{Title: "Canvas Tote", Description: "Heavy cotton tote bag", Price: 12, Quantity: 75},
}

func runSeed(cmd *cobra.Command, _ []string) error {
	if cfg.StoreDriver == config.DriverMemory {
		return fmt.Errorf("seeding the memory driver has no lasting effect; pick --driver postgres or mongo")
	}
	st, err := openStore(cmd, true)
	if err != nil {
		return err
	}
	defer closeStore(st)

	svc := catalog.NewService(st, domain.NopPublisher{}, log)
	for _, in := range samples {
		p, err := svc.CreateProduct(cmd.Context(), operator, in)
		if err != nil {
			return fmt.Errorf("seed %q: %w", in.Title, err)
		}
		log.Info("product created", zap.String("id", p.ID), zap.String("title", p.Title))
	}
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	ttl, err := time.ParseDuration(tokenTTL)
	if err != nil {
		return fmt.Errorf("invalid --ttl: %w", err)
	}
	tok, err := auth.Sign(cfg.JWTSecret, auth.Principal{
		ID:    args[0],
		Role:  tokenRole,
		Name:  tokenName,
		Email: tokenMail,
	}, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
