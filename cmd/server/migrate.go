package main

import (
	"context"
	"fmt"

	"chatbot-backend/internal/config"
	"chatbot-backend/internal/database"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx := context.Background()

			db, err := database.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()

			applied, err := database.RunMigrations(ctx, db, dir)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("database is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Printf("applied %s\n", v)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (default: search ./migrations and parents)")
	return cmd
}
