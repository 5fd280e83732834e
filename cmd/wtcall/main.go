package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "wtcall",
		Short: "Mediated call relay and confirmation-gated call execution",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cfgFile)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.wtcall/config.yaml)")
	cmd.PersistentFlags().String("as", "", "acting identity (hex address)")
	_ = viper.BindPFlag("as", cmd.PersistentFlags().Lookup("as"))

	cmd.AddCommand(
		newResourceCmd(),
		newChildrenCmd(),
		newSubmitCmd(),
		newApproveCmd(),
		newStatusCmd(),
		newPendingCmd(),
		newRelayCmd(),
		newKeysCmd(),
	)
	return cmd
}

func initConfig(cfgFile string) error {
	setDefaults()

	if strings.TrimSpace(cfgFile) != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil && strings.TrimSpace(home) != "" {
			viper.AddConfigPath(home + "/.wtcall")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("WTCALL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && strings.TrimSpace(cfgFile) == "" {
			return nil
		}
		if os.IsNotExist(err) && strings.TrimSpace(cfgFile) == "" {
			return nil
		}
		return err
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("db.dsn", "~/.wtcall/wtcall.db")
	viper.SetDefault("db.sqlite.wal", true)
	viper.SetDefault("db.sqlite.busy_timeout_ms", 5000)
	viper.SetDefault("db.sqlite.foreign_keys", true)

	viper.SetDefault("audit.jsonl_path", "~/.wtcall/events.jsonl")
	viper.SetDefault("audit.rotate_max_bytes", int64(100*1024*1024))

	viper.SetDefault("keys.path", "~/.wtcall/keys.yaml")
	viper.SetDefault("log.level", "info")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(viper.GetString("log.level"))) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
