package main

import (
	"fmt"
	"time"

	"chatbot-backend/internal/config"
	"chatbot-backend/internal/model"
	"chatbot-backend/internal/service"

	"github.com/spf13/cobra"
)

// tokenCmd signs a widget token for local testing with the server's secret.
func tokenCmd() *cobra.Command {
	var (
		identity model.Identity
		role     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development identity token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to sign tokens in production")
			}
			identity.Role = model.Role(role)
			if !identity.Role.Valid() || identity.Role == model.RoleBot {
				return fmt.Errorf("invalid role %q", role)
			}
			if identity.ID == "" || identity.BusinessID == "" {
				return fmt.Errorf("--id and --business are required")
			}

			token, err := service.NewAuthService(cfg.JWTSecret).SignIdentity(identity, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity.ID, "id", "", "identity id")
	cmd.Flags().StringVar(&identity.BusinessID, "business", "", "business id")
	cmd.Flags().StringVar(&identity.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(model.RoleGuest), "guest, user or staff")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
