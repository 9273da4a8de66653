package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"webchat/internal/repository/storefactory"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create transcript tables and indexes",
	Long:  `Create the conversation and message tables (or MongoDB indexes) for the configured store.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	store, err := storefactory.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	defer store.Close(ctx)

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	log.Info().Str("type", cfg.Store.Type).Msg("migration completed")
	return nil
}
