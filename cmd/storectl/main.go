package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/logx"
)

var (
	cfg config.Config
	log *zap.Logger

	rootCmd = &cobra.Command{
		Use:          "storectl",
		Short:        "Maintenance commands for the storefront store",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			cfg = config.Load()
			if driver != "" {
				cfg.StoreDriver = driver
			}
			log = logx.Must(cfg.AppEnv).Named("storectl")
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema or the mongo indexes",
		RunE:  runMigrate,
	}

	recomputeCmd = &cobra.Command{
		Use:   "recompute-ratings",
		Short: "Rebuild every product rating from its reviews",
		RunE:  runRecompute,
	}

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Insert a handful of sample products",
		RunE:  runSeed,
	}

	tokenCmd = &cobra.Command{
		Use:   "token [user-id]",
		Short: "Sign a development token for user-id",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
)

var (
	driver    string
	workers   int
	tokenRole string
	tokenName string
	tokenMail string
	tokenTTL  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "override STORE_DRIVER (memory, postgres, mongo)")

	recomputeCmd.Flags().IntVar(&workers, "workers", 4, "products recomputed in parallel")

	tokenCmd.Flags().StringVar(&tokenRole, "role", "user", "role claim (user or admin)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name claim")
	tokenCmd.Flags().StringVar(&tokenMail, "email", "", "email claim")
	tokenCmd.Flags().StringVar(&tokenTTL, "ttl", "24h", "token lifetime")

	rootCmd.AddCommand(migrateCmd, recomputeCmd, seedCmd, tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
