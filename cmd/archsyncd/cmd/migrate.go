package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/archsync/archsync-coordinator/internal/config"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Inspect or apply schema migrations",
	// serve binds the same viper keys to its own flags during init, and the
	// last binding wins; rebinding here makes migrate's flags take effect.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlag("database.kind", cmd.Flags().Lookup("database-kind")); err != nil {
			return err
		}
		return viper.BindPFlag("database.url", cmd.Flags().Lookup("database-url"))
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending schema migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openMigrateTarget()
		if err != nil {
			return err
		}
		defer db.Close()

		log := slog.New(slog.NewTextHandler(os.Stdout, nil))
		return storage.Schema.Run(cmd.Context(), log, db)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print applied and pending migration versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openMigrateTarget()
		if err != nil {
			return err
		}
		defer db.Close()

		status, err := storage.Schema.Status(cmd.Context(), db)
		if err != nil {
			return err
		}
		fmt.Printf("applied (%d):\n", len(status.Applied))
		for _, v := range status.Applied {
			fmt.Printf("  %s\n", v)
		}
		fmt.Printf("pending (%d):\n", len(status.Pending))
		for _, v := range status.Pending {
			fmt.Printf("  %s\n", v)
		}
		if len(status.Pending) > 0 {
			os.Exit(1)
		}
		return nil
	},
}

func openMigrateTarget() (config.Config, storage.DB, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load config: %w", err)
	}
	db, err := storage.Open(cfg)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, db, nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	migrateCmd.PersistentFlags().String("database-kind", "embedded", "Storage driver: embedded or server")
	migrateCmd.PersistentFlags().String("database-url", "", "Database connection string (required for database-kind=server)")
	_ = viper.BindPFlag("database.kind", migrateCmd.PersistentFlags().Lookup("database-kind"))
	_ = viper.BindPFlag("database.url", migrateCmd.PersistentFlags().Lookup("database-url"))
}
