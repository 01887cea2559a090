package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/microproto/internal/core/auth"
	"github.com/solatis/microproto/internal/core/config"
	"github.com/solatis/microproto/internal/core/db"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys for the HTTP and gRPC surfaces",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an API key and print it once",
	Args:  cobra.ExactArgs(1),
	RunE: withAuthenticator(func(cmd *cobra.Command, a *auth.Authenticator, args []string) error {
		secretID, _ := cmd.Flags().GetString("secret-id")
		key, info, err := a.CreateKey(cmd.Context(), args[0], secretID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "id:     %s\nname:   %s\nsecret: %s\n\n%s\n", info.ID, info.Name, info.SecretID, key)
		fmt.Fprintln(cmd.ErrOrStderr(), "store this key now, it cannot be shown again")
		return nil
	}),
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE: withAuthenticator(func(cmd *cobra.Command, a *auth.Authenticator, args []string) error {
		keys, err := a.ListKeys(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCREATED\tLAST USED\tSTATUS")
		for _, k := range keys {
			lastUsed, status := "never", "active"
			if k.LastUsedAt.Valid {
				lastUsed = k.LastUsedAt.Time.Format(time.RFC3339)
			}
			if k.RevokedAt.Valid {
				status = "revoked " + k.RevokedAt.Time.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, k.CreatedAt.Format(time.RFC3339), lastUsed, status)
		}
		return w.Flush()
	}),
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: withAuthenticator(func(cmd *cobra.Command, a *auth.Authenticator, args []string) error {
		if err := a.RevokeKey(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("revoke %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyListCmd, apikeyRevokeCmd)
	apikeyCreateCmd.Flags().String("secret-id", "", "HMAC secret to sign with (default: newest)")
}

// withAuthenticator opens the SQL store holding API keys.
func withAuthenticator(fn func(*cobra.Command, *auth.Authenticator, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !isSQL(cfg.Storage.URL) {
			return fmt.Errorf("API keys need a SQL storage URL, got %q", cfg.Storage.URL)
		}
		secrets, err := config.HMACSecrets()
		if err != nil {
			return fmt.Errorf("failed to load HMAC secrets: %w", err)
		}
		if len(secrets) == 0 {
			return fmt.Errorf("no HMAC secrets configured (set %s_HMAC_SECRET environment variable)", config.EnvPrefix)
		}

		conn, err := db.Open(cfg.Storage.URL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer conn.Close()
		queries, err := db.LoadQueries(conn)
		if err != nil {
			return fmt.Errorf("failed to load queries: %w", err)
		}
		if err := requireMigrated(cmd.Context(), queries); err != nil {
			return err
		}
		return fn(cmd, auth.NewAuthenticator(secrets, queries), args)
	}
}
