package main

import (
	"fmt"
	"os"

	"github.com/fentz26/reprocess/internal/config"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Reprocess - Oozie job reprocessing manager",
	Long: `Reprocess composes, runs and monitors plans of Oozie rerun tasks against
a reprocessing backend, from the terminal UI or from scripts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	configPath string
	cfg        *config.Config
)

func init() {
	rootCmd.PersistentPreRunE = loadConfig
	rootCmd.PersistentFlags().String("api", "http://localhost:8000", "Backend base address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/reprocess/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(planCmd, taskCmd, jobCmd)
	rootCmd.AddCommand(statusCmd, versionCmd)
	rootCmd.AddCommand(devserverCmd, tuiCmd)
}

// loadConfig merges defaults, the config file, the environment and flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	v := config.NewViper(configPath)
	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("api", flags.Lookup("api")); err != nil {
		return err
	}
	if err := v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		return err
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
