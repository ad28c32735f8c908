package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/craftlink/craftlink/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "craftlink",
	Short: "Discord to Minecraft account linking service",
	Long: `Craftlink binds Discord identities to Minecraft accounts. It handles the
Discord OAuth login flow, stores sessions and bindings, and keeps the
Minecraft server whitelist in sync with the current bindings.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
