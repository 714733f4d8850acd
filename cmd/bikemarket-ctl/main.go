package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kousuke-irie/bicycle-market/config"
	"github.com/Kousuke-irie/bicycle-market/database"
	"github.com/Kousuke-irie/bicycle-market/models"
	"github.com/Kousuke-irie/bicycle-market/services"
	"github.com/Kousuke-irie/bicycle-market/storage"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "bikemarket-ctl",
		Short:   "Operations tool for the bicycle market backend",
		Version: Version,
	}

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(orderNumberCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail pending payments whose deadline has passed (one run, for cron)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, db, err := openDB()
			if err != nil {
				return err
			}
			store, closeStore, err := storage.Open(ctx, cfg.Storage)
			if err != nil {
				return fmt.Errorf("storage: %w", err)
			}
			defer closeStore()

			res, err := services.New(db, cfg, store).SweepExpired(ctx)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func migrateCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema and (optionally) seed reference data",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB()
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			if seed {
				if err := database.SeedData(db); err != nil {
					return err
				}
			}
			fmt.Println("migration completed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", true, "insert brands, conditions and transmissions")
	return cmd
}

func orderNumberCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "order-number",
		Short: "Print a freshly generated order number",
		RunE: func(cmd *cobra.Command, args []string) error {
			exists := func(string) (bool, error) { return false, nil }
			attempts := 1
			if check {
				cfg, db, err := openDB()
				if err != nil {
					return err
				}
				attempts = cfg.Market.OrderNumberMaxAttempts
				exists = func(n string) (bool, error) {
					var count int64
					err := db.Model(&models.Order{}).Where("order_number = ?", n).Count(&count).Error
					return count > 0, err
				}
			}
			n, err := services.GenerateOrderNumber(time.Now(), attempts, exists)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "make sure the number is not used yet")
	return cmd
}

func openDB() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	return cfg, db, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
