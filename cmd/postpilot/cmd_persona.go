package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/postpilot/internal/types"
)

func init() {
	rootCmd.AddCommand(personaCmd)
	personaCmd.AddCommand(personaShowCmd, personaBackupsCmd, personaRollbackCmd)
}

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Inspect and manage the persona profile",
}

var personaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current persona profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		profile, err := newPersonaStore(cfg).Load(cmd.Context())
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(profile, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	},
}

var personaBackupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List persona backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		ids, err := newPersonaStore(cfg).Backups(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No backups yet.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var personaRollbackCmd = &cobra.Command{
	Use:   "rollback <backup-id>",
	Short: "Restore the persona profile from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		store := newPersonaStore(cfg)
		if err := store.Rollback(cmd.Context(), types.BackupID(args[0])); err != nil {
			return err
		}
		fmt.Printf("Persona restored from backup %s.\n", args[0])
		return nil
	},
}
