package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kdimtricp/vsearch/internal/config"
	"github.com/kdimtricp/vsearch/internal/logging"
)

// CLI carries the flags shared by every vsearch binary.
type CLI struct {
	v          *viper.Viper
	configFile string
}

// NewCLI registers --config, --log-level and --log-format on root and binds
// the log flags into the configuration.
func NewCLI(root *cobra.Command) (*CLI, error) {
	c := &CLI{v: config.New()}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configFile, "config", "c", "", "Path to config file (default ./config.yaml if present)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")

	if err := c.v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	if err := c.v.BindPFlag("log.format", flags.Lookup("log-format")); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return c, nil
}

// Bind maps a command flag onto a configuration key.
func (c *CLI) Bind(cmd *cobra.Command, key, flag string) error {
	if err := c.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		return fmt.Errorf("bind flag %s: %w", flag, err)
	}
	return nil
}

// Load reads the configuration and builds the default logger.
func (c *CLI) Load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.v, c.configFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
