package callerpro

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eburon/callerpro/internal/config"
)

const defaultConfigPath = "callerpro.yaml"

// NewConfigCmd creates the config command
func NewConfigCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigValidateCmd(v))

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Long: `Write the default configuration to path (callerpro.yaml by default).
API keys are read from the environment variables the file names; they are
never written.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			return initConfig(path, force, cmd)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func initConfig(path string, force bool, cmd *cobra.Command) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite it", path)
	}
	if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
		return err
	}
	cmd.Printf("Wrote default configuration to %s\n", path)
	return nil
}

func newConfigValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration with overrides applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			cmd.Printf("Configuration is valid (listen %s, audio %s, crm %s)\n", cfg.Addr(), cfg.Audio.Device, cfg.CRM.Driver)
			return nil
		},
	}
}
