package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dsvrelay/dsv-relay/internal/config"
	"github.com/dsvrelay/dsv-relay/internal/logging"
	"github.com/dsvrelay/dsv-relay/internal/version"
)

var (
	configFileFlag string
	envFileFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "dsv-relay",
	Short: "Citizen disservice report relay",
	Long: `dsv-relay accepts disservice reports from the public intake form, assigns each one a
yearly practice code and forwards it by email to the responsible office.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFile(envFileFlag)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "dsv-relay %s\n", version.Full())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFileFlag, "config", "config.yaml", "Path to the YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", ".env", "Dotenv file loaded before reading configuration")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(counterCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadEnvFile imports a dotenv file without overriding variables already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// bootstrap loads configuration and builds the logger from it.
func bootstrap() (*config.Manager, *zap.Logger, error) {
	mgr, err := config.NewManager(configFileFlag, nil)
	if err != nil {
		return nil, nil, err
	}
	cfg := mgr.Get()
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	mgr.SetLogger(logger.Named("config"))
	return mgr, logger.With(zap.String("app", cfg.App.Name)), nil
}
