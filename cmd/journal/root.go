package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"journal-relay/infrastructure/relayclient"
	"journal-relay/infrastructure/sse"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "journal",
	Short: "AI journaling assistant",
	Long:  `Talk to your AI journaling assistant, export your journal and generate weekly summaries.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(viper.GetString("log_level"))
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		logrus.SetLevel(level)
		logrus.SetOutput(os.Stderr)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.journal.yaml)")

	rootCmd.PersistentFlags().StringP("server", "s", "http://localhost:8080", "journal relay base URL")
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.PersistentFlags().String("relay-path", "/chat", "path of the chat relay endpoint")
	viper.BindPFlag("relay_path", rootCmd.PersistentFlags().Lookup("relay-path"))

	rootCmd.PersistentFlags().String("token", "", "bearer token sent to the relay")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.PersistentFlags().StringP("user", "u", "", "user id (UUID)")
	viper.BindPFlag("user_id", rootCmd.PersistentFlags().Lookup("user"))

	rootCmd.PersistentFlags().String("trailing-policy", "drop", "what to do with an incomplete fragment at end of stream: drop or error")
	viper.BindPFlag("trailing_policy", rootCmd.PersistentFlags().Lookup("trailing-policy"))

	rootCmd.PersistentFlags().StringP("log-level", "l", "warn", "log level")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	viper.SetDefault("server", "http://localhost:8080")
	viper.SetDefault("relay_path", "/chat")
	viper.SetDefault("trailing_policy", "drop")
	viper.SetDefault("log_level", "warn")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".journal")
	}

	viper.SetEnvPrefix("JOURNAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindEnv("trailing_policy", "JOURNAL_TRAILING_POLICY", "SSE_TRAILING_POLICY")

	if err := viper.ReadInConfig(); err == nil {
		logrus.WithField("config_file", filepath.Clean(viper.ConfigFileUsed())).Debug("Using config file")
	}
}

// newClient builds the API client from the resolved configuration
func newClient() (*relayclient.Client, error) {
	raw := viper.GetString("user_id")
	if raw == "" {
		return nil, fmt.Errorf("user id is required: set --user, user_id in the config file or JOURNAL_USER_ID")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", raw, err)
	}

	return relayclient.NewClient(relayclient.Config{
		BaseURL:   viper.GetString("server"),
		RelayPath: viper.GetString("relay_path"),
		Token:     viper.GetString("token"),
		UserID:    userID,
	}), nil
}

func trailingPolicy() (sse.TrailingPolicy, error) {
	return sse.ParseTrailingPolicy(viper.GetString("trailing_policy"))
}
