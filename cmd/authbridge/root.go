package main

import (
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/layer-3/authbridge/internal/config"
	"github.com/layer-3/authbridge/internal/logging"
)

var (
	configFile string
	v          = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "authbridge",
	Short: "Authentication bridge between web sessions and backend credentials",
	Long: `authbridge keeps backend access/refresh tokens for signed-in visitors,
injects them into proxied backend calls, refreshes them once on rejection
and gates protected routes on session and credential presence.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configErr := readConfig()
		logging.Init(logging.Options{
			Level:   v.GetString("log.level"),
			Format:  v.GetString("log.format"),
			NoColor: v.GetBool("log.no_color"),
		})
		if configErr != nil { // handle error after logging is initialized
			return configErr
		}
		if configPath != "" {
			log.Debug().Msgf("using config file: %s", configPath)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("execution failed")
		os.Exit(1)
	}
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Configuration file (default is ./authbridge.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable color output")
	_ = v.BindPFlag("log.no_color", rootCmd.PersistentFlags().Lookup("no-color"))

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(serveCmd)
}

// readConfig loads the optional YAML file. A missing default file is not an error.
func readConfig() (string, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/authbridge")
		v.SetConfigType("yaml")
		v.SetConfigName("authbridge")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			return "", err
		}
		return "", nil
	}
	return v.ConfigFileUsed(), nil
}
