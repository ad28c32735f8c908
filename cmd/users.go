package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/craftlink/craftlink/internal/db/bunx"
	"github.com/craftlink/craftlink/internal/repository"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "User management commands",
	Long:  `Commands for inspecting and moderating linked users.`,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known users",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := bunx.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		users, err := repository.NewBunUserRepository(db).List(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}

		if len(users) == 0 {
			log.Printf("No users found")
			return nil
		}

		for _, u := range users {
			minecraft := "-"
			if u.MinecraftUUID != nil {
				minecraft = *u.MinecraftUUID
			}
			flag := ""
			if u.Banned {
				flag = " [banned]"
			}
			fmt.Printf("%d\t%s\t%s%s\n", u.DiscordID, u.DiscordUsername, minecraft, flag)
		}
		return nil
	},
}

var banUUIDFlag string

var usersBanCmd = &cobra.Command{
	Use:   "ban",
	Short: "Ban the user bound to a Minecraft account",
	Long:  `Flags the user holding the given Minecraft account id as banned. Banned users can no longer rebind.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if banUUIDFlag == "" {
			return fmt.Errorf("--minecraft-uuid flag is required")
		}

		db, err := bunx.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		if err := repository.NewBunUserRepository(db).BanByMinecraftUUID(context.Background(), banUUIDFlag); err != nil {
			return fmt.Errorf("failed to ban user: %w", err)
		}

		log.Printf("Banned user bound to %s", banUUIDFlag)
		return nil
	},
}

func init() {
	usersBanCmd.Flags().StringVar(&banUUIDFlag, "minecraft-uuid", "", "Minecraft account id of the user to ban")
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersBanCmd)
	rootCmd.AddCommand(usersCmd)
}
