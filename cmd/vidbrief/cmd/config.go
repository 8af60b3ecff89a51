package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/vidbrief/internal/config"
)

const redacted = "[REDACTED]"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing vidbrief configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML format.

With no config file or environment overrides this prints every option with
its default value, which makes a good starting template:

  vidbrief config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., ./configs, /etc/vidbrief or ~/.vidbrief)
  - Environment variables (VIDBRIEF_SERVER_PORT, VIDBRIEF_INBOX_BACKEND, etc.)
  - Command-line flags (for some options)

Environment variables use the VIDBRIEF_ prefix and underscores for nesting.
Example: transcode.size_ceiling -> VIDBRIEF_TRANSCODE_SIZE_CEILING

Secrets are redacted in the output.`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map, formatting durations and sizes
// for human readability and hiding fields tagged masq:"secret".
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		if !fieldType.IsExported() {
			continue
		}

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		if fieldType.Tag.Get("masq") == "secret" {
			if field.String() != "" {
				result[key] = redacted
			} else {
				result[key] = ""
			}
			continue
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# vidbrief Configuration File")
	fmt.Fprintln(out, "# ============================")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# Duration format: 30s, 5m, 1h")
	fmt.Fprintln(out, "# Size format: 9.5MB, 1GB")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# Environment variable overrides:")
	fmt.Fprintln(out, "#   VIDBRIEF_SERVER_PORT, VIDBRIEF_SERVER_API_KEY")
	fmt.Fprintln(out, "#   VIDBRIEF_DATABASE_DRIVER, VIDBRIEF_DATABASE_DSN")
	fmt.Fprintln(out, "#   VIDBRIEF_TRANSCODE_SIZE_CEILING, VIDBRIEF_SUMMARIZER_API_KEY")
	fmt.Fprintln(out, "#   etc.")
	fmt.Fprintln(out, "")
	fmt.Fprint(out, string(yamlData))

	return nil
}
