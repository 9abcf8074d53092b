package callerpro

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/eburon/callerpro/internal/config"
)

// NewRootCmd creates the root callerpro command
func NewRootCmd() *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:   "callerpro",
		Short: "Voice agent call center",
		Long: `callerpro runs voice agents that take calls for Eburon Estates.

A call plays ring, hold, busy and office ambience tones while the agent talks
to the caller through a hosted multimodal model or a local model server. The
agent can search listings and book viewings in the CRM.

Available subcommands:
  serve       Serve the caller API over HTTP
  call        Place a call from the console softphone
  agents      List the agent catalog
  config      Manage the configuration file

Examples:
  callerpro serve --config callerpro.yaml
  callerpro call default-ayla-agent
  callerpro agents -o json
  callerpro config init callerpro.yaml`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(v.GetString("log-level"), v.GetBool("dev-log"))
		},
	}

	cmd.PersistentFlags().String("config", "", "Path to the configuration file (defaults apply when empty)")
	cmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().Bool("dev-log", false, "Use human readable development logging")
	_ = v.BindPFlags(cmd.PersistentFlags())

	cmd.PersistentFlags().String("catalog", "", "Path to an agent catalog file (overrides catalog.path)")
	_ = v.BindPFlag("catalog.path", cmd.PersistentFlags().Lookup("catalog"))

	cmd.AddCommand(NewServeCmd(v))
	cmd.AddCommand(NewCallCmd(v))
	cmd.AddCommand(NewAgentsCmd(v))
	cmd.AddCommand(NewConfigCmd(v))

	return cmd
}

// newViper resolves settings from flags and CALLERPRO_* variables, e.g.
// CALLERPRO_SERVER_PORT for server.port.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("CALLERPRO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

func setupLogging(level string, dev bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	ctrllog.SetLogger(zap.New(zap.UseDevMode(dev), zap.Level(lvl)))
	return nil
}

// loadConfig reads the configuration file and applies flag and
// CALLERPRO_* environment overrides.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.LoadConfig(v.GetString("config"))
	if err != nil {
		return nil, err
	}

	if v.IsSet("server.host") {
		cfg.Server.Host = v.GetString("server.host")
	}
	if v.IsSet("server.port") {
		cfg.Server.Port = v.GetInt("server.port")
	}
	if v.IsSet("audio.device") {
		cfg.Audio.Device = v.GetString("audio.device")
	}
	if v.IsSet("catalog.path") {
		cfg.Catalog.Path = v.GetString("catalog.path")
	}
	if v.IsSet("crm.dsn") {
		cfg.CRM.DSN = v.GetString("crm.dsn")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
