package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/archsync/archsync-coordinator/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "archsyncd",
	Short: "archsyncd coordinates Arch Linux package state across a pool of endpoints",
}

// Execute runs the root command, exiting non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	config.SetDefaults(viper.GetViper())
}
