// Package cmd implements the CLI commands for vidbrief.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/observability"
	"github.com/jmylchreest/vidbrief/internal/version"
)

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// logConfig is the resolved logging configuration, kept so commands can
// rebuild the logger with an extra writer.
var logConfig config.LoggingConfig

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "vidbrief",
	Short:   "Compress, upload and summarize videos dropped into an inbox",
	Version: version.Short(),
	Long: `vidbrief watches an inbox of video files. Each new video is compressed
with ffmpeg until it fits under a size ceiling, uploaded to object storage,
summarized by a multimodal model, recorded in a database and announced with
a push notification.

It can be run once from the command line, on a cron schedule, or as an
HTTP service that also accepts inbox webhooks.`,
	SilenceUsage: true,
	// PersistentPreRunE is set in init() to avoid initialization cycle
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// These flags are not bound to viper; they only override config and
	// environment values when explicitly set.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or /etc/vidbrief/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/vidbrief")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.vidbrief")
		}
	}

	viper.SetEnvPrefix("VIDBRIEF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging configures the default slog logger.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format) when explicitly provided
//  2. Environment variables (VIDBRIEF_LOGGING_LEVEL, VIDBRIEF_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, json)
func initLogging() error {
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}

	logConfig = config.LoggingConfig{
		Level:      strings.ToLower(level),
		Format:     strings.ToLower(format),
		AddSource:  viper.GetBool("logging.add_source"),
		TimeFormat: viper.GetString("logging.time_format"),
	}
	if logConfig.Level == "warning" {
		logConfig.Level = "warn"
	}

	// Keep the validated config consistent with the flags.
	viper.Set("logging.level", logConfig.Level)
	viper.Set("logging.format", logConfig.Format)

	observability.SetDefault(newLogger(os.Stderr))
	return nil
}

// newLogger builds the application logger writing to w.
func newLogger(w io.Writer) *slog.Logger {
	logger := observability.NewLoggerWithWriter(logConfig, w)
	return observability.WithApp(logger, "vidbrief", version.Short())
}

// loadConfig decodes and validates the configuration prepared by initConfig.
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
