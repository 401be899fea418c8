package commands

import (
	"github.com/spf13/cobra"

	"github.com/ctagard/gdbmi-dap/internal/config"
	"github.com/ctagard/gdbmi-dap/internal/mcp"
)

func NewMCPCommand(a *app) (*cobra.Command, error) {
	mcpCmd := &cobra.Command{
		Use:   "mcp [--mode readonly|full]",
		Short: "Serves gdb sessions as Model Context Protocol tools",
		Long: `Serves gdb sessions as Model Context Protocol tools on stdin and stdout.

	In readonly mode the tools that change breakpoints, execution or variables are not offered.`,
		RunE: runMCP(a),
		Args: cobra.NoArgs,
	}

	mcpCmd.Flags().String("mode", "", "Capability mode: 'readonly' or 'full' (default from mcp.mode)")
	if err := a.v.BindPFlag("mcp.mode", mcpCmd.Flags().Lookup("mode")); err != nil {
		return nil, err
	}

	return mcpCmd, nil
}

func runMCP(a *app) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.teardown()

		server := mcp.NewServer(a.cfg.MCP, a.bridgeConfig())
		defer server.Close()

		a.log.Info("serving MCP on stdio", "mode", a.cfg.MCP.Mode,
			"readonly", a.cfg.MCP.Mode == config.ModeReadOnly)
		return server.ServeStdio()
	}
}
