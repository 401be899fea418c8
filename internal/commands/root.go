// Package commands holds the gdbmi-dap command line.
package commands

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ctagard/gdbmi-dap/internal/bridge"
	"github.com/ctagard/gdbmi-dap/internal/config"
	"github.com/ctagard/gdbmi-dap/internal/gdb"
	"github.com/ctagard/gdbmi-dap/internal/logger"
)

// app is the state shared by the commands: the configuration they load and
// the logger built from it.
type app struct {
	v          *viper.Viper
	configPath string

	cfg         *config.Config
	log         logr.Logger
	closeLog    func()
	stopMetrics func()
}

func NewRootCommand() (*cobra.Command, error) {
	a := &app{v: config.New(), log: logr.Discard()}

	rootCmd := &cobra.Command{
		SilenceErrors: true,
		SilenceUsage:  true,
		Use:           "gdbmi-dap",
		Short:         "Debugs native programs with gdb over the Debug Adapter Protocol",
		Long: `Debugs native programs with gdb over the Debug Adapter Protocol.

	gdbmi-dap drives gdb through its machine interface (MI) and presents the debug session
	to editors as a DAP debug adapter, or to AI assistants as MCP tools.
	Without a subcommand it serves DAP on stdin and stdout.`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: a.setup,
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a YAML or JSON configuration file")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-file", "", "Write logs to this file, rotated, instead of stderr")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. localhost:9464")
	flags.String("gdb", "", "The gdb executable to run")

	for key, flag := range map[string]string{
		"log.level":    "log-level",
		"log.file":     "log-file",
		"metrics.addr": "metrics-addr",
		"gdb.path":     "gdb",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("could not bind flag %s: %w", flag, err)
		}
	}

	dapCmd := NewDAPCommand(a)
	rootCmd.Flags().AddFlagSet(dapCmd.Flags())
	rootCmd.RunE = dapCmd.RunE
	rootCmd.AddCommand(dapCmd)

	mcpCmd, err := NewMCPCommand(a)
	if err != nil {
		return nil, fmt.Errorf("could not set up 'mcp' command: %w", err)
	}
	rootCmd.AddCommand(mcpCmd)

	rootCmd.AddCommand(NewVersionCommand(a))

	return rootCmd, nil
}

// setup loads the configuration and builds the logger before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log, a.closeLog = logger.New(cfg.Log)
	a.log = a.log.WithName("gdbmi-dap")

	a.log.V(1).Info("starting", "command", cmd.Name(), "config", a.configPath, "gdb", cfg.GDB.Path)

	if cfg.Metrics.Addr != "" {
		stop, err := startMetrics(cmd.Context(), cfg.Metrics.Addr, a.log)
		if err != nil {
			a.teardown()
			return err
		}
		a.stopMetrics = stop
	}
	return nil
}

// teardown undoes setup. Commands defer it.
func (a *app) teardown() {
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}

// bridgeConfig describes how sessions start gdb.
func (a *app) bridgeConfig() bridge.Config {
	return bridge.Config{
		GDBPath:    a.cfg.GDB.Path,
		GDBArgs:    a.cfg.GDB.Args,
		NewConsole: a.cfg.GDB.NewConsole,
		Client: gdb.Config{
			Timeout:  a.cfg.GDB.CommandTimeout,
			Sentinel: a.cfg.GDB.Sentinel,
		},
		ShutdownGrace: a.cfg.GDB.ShutdownGrace,
		Logger:        a.log,
	}
}
