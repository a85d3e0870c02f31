// Command cartsync is a thin operational CLI over the sync engine: it
// inspects the local mirror and action queue, refreshes the mirror from the
// server and replays queued mutations.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/c0deZ3R0/go-cart-sync/logging"
)

var rootCmd = &cobra.Command{
	Use:   "cartsync",
	Short: "Offline-first sync client for the grocery API",
	Long: `cartsync keeps a local mirror of the grocery server and a durable
queue of offline mutations. Commands operate on the same database the
embedding application uses.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		setupLogging()
		return nil
	}
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default ~/.cartsync/config.yaml)")
	flags.String("server", "http://localhost:8080", "base URL of the grocery API")
	flags.String("backend", "bolt", "storage backend: bolt or sqlite")
	flags.String("db", "", "database path (default ~/.cartsync/cartsync.db)")
	flags.String("auth-token", "", "bearer token for the API")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-file", "", "write logs to a rotating file instead of stderr")
}

func initConfig() error {
	viper.SetEnvPrefix("CARTSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".cartsync"))
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

func setupLogging() {
	config := logging.Config{
		Level:  viper.GetString("log-level"),
		Format: "json",
	}

	if logFile := viper.GetString("log-file"); logFile != "" {
		logging.InitWithWriter(config, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
		return
	}
	logging.InitWithWriter(config, os.Stderr)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
