package cli

import (
	"fmt"
	"time"

	"coreops/internal/config"
	"coreops/internal/middleware"

	"github.com/spf13/cobra"
)

var (
	flagUserID      uint
	flagWorkspaceID uint
	flagName        string
	flagRole        string
	flagTTLMin      int
)

// tokenCmd mints an HS256 session token for local testing.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a session JWT (HS256) for API and websocket access",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is empty; set it in config")
		}
		if flagUserID == 0 || flagWorkspaceID == 0 {
			return fmt.Errorf("--user and --workspace are required")
		}
		ttl := cfg.JWT.ExpiresIn
		if flagTTLMin > 0 {
			ttl = time.Duration(flagTTLMin) * time.Minute
		}
		tok, err := middleware.IssueToken(cfg.JWT.Secret, middleware.Claims{
			UserID:      flagUserID,
			WorkspaceID: flagWorkspaceID,
			Name:        flagName,
			Role:        flagRole,
		}, ttl)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().UintVar(&flagUserID, "user", 0, "user id")
	tokenCmd.Flags().UintVar(&flagWorkspaceID, "workspace", 0, "workspace id")
	tokenCmd.Flags().StringVar(&flagName, "name", "", "display name")
	tokenCmd.Flags().StringVar(&flagRole, "role", "owner", "workspace role")
	tokenCmd.Flags().IntVar(&flagTTLMin, "ttl", 0, "ttl in minutes (default jwt.expires_in)")
	rootCmd.AddCommand(tokenCmd)
}
