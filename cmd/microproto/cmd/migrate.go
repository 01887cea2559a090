package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/microproto/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the SQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachSQLStore(cmd, func(url string) error {
			conn, err := db.Open(url)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.MigrateUp(cmd.Context(), conn); err != nil {
				return fmt.Errorf("migrate %s: %w", url, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: up to date\n", url)
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachSQLStore(cmd, func(url string) error {
			conn, err := db.Open(url)
			if err != nil {
				return err
			}
			defer conn.Close()
			status, err := db.MigrateStatus(cmd.Context(), conn)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "%s\nMIGRATION\tSTATUS\tAPPLIED AT\tDURATION\n", url)
			for _, m := range status {
				if !m.Applied {
					fmt.Fprintf(w, "%s\tpending\t-\t-\n", m.ID)
					continue
				}
				fmt.Fprintf(w, "%s\tapplied\t%s\t%dms\n", m.ID, m.AppliedAt.Format(time.RFC3339), m.ExecutionMs)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
}

// forEachSQLStore runs fn for the storage URL and, when it differs, the
// blob URL, skipping stores that are not SQL.
func forEachSQLStore(cmd *cobra.Command, fn func(url string) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	urls := []string{cfg.Storage.URL}
	if cfg.Storage.BlobURL != "" && cfg.Storage.BlobURL != cfg.Storage.URL {
		urls = append(urls, cfg.Storage.BlobURL)
	}

	var ran bool
	for _, u := range urls {
		if !isSQL(u) {
			continue
		}
		ran = true
		if err := fn(u); err != nil {
			return err
		}
	}
	if !ran {
		fmt.Fprintln(cmd.ErrOrStderr(), "no SQL storage configured, nothing to migrate")
	}
	return nil
}
