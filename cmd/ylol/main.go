package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ylol-app/ylol/internal/config"
	"github.com/ylol-app/ylol/internal/observability"
)

var version = "dev"

var (
	configPath string
	verbose    bool

	cfg        *config.Config
	closeLogFn func() error
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ylol",
	Short: "y.lol chat journal",
	Long: `ylol runs the y.lol conversation pipeline: it loads your last session,
sends what you write to the response service and reveals the reply bubble by bubble.

Configuration comes from defaults, then the YAML file named by --config or
YLOL_CONFIG, then YLOL_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			if err := os.Setenv("YLOL_CONFIG", configPath); err != nil {
				return err
			}
		}
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		if cmd.Name() == "chat" {
			// the terminal belongs to the conversation
			loaded.Logging.Quiet = true
		}
		cfg = loaded
		closeLogFn = observability.Setup(cfg.Logging)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if closeLogFn != nil {
			return closeLogFn()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (or set YLOL_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
