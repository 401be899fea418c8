package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ctagard/gdbmi-dap/internal/dap"
)

func NewDAPCommand(a *app) *cobra.Command {
	var listen string

	dapCmd := &cobra.Command{
		Use:   "dap [--listen address]",
		Short: "Serves the Debug Adapter Protocol",
		Long: `Serves the Debug Adapter Protocol.

	By default one front end is served on stdin and stdout, which is how editors start a debug adapter.
	With --listen every accepted TCP connection gets its own session and gdb.`,
		RunE: runDAP(a, &listen),
		Args: cobra.NoArgs,
	}

	dapCmd.Flags().StringVar(&listen, "listen", "", "Accept DAP connections on this TCP address instead of using stdio, e.g. localhost:4711")

	return dapCmd
}

func runDAP(a *app, listen *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.teardown()
		log := a.log.WithName("dap")
		cfg := a.bridgeConfig()
		cfg.Logger = log

		if *listen == "" {
			srv := dap.NewServer(dap.NewStdioTransport(os.Stdin, os.Stdout), cfg)
			return srv.Serve(cmd.Context())
		}

		l, err := dap.Listen(*listen)
		if err != nil {
			log.Error(err, "Failed to create TCP listener", "Address", *listen)
			return err
		}
		log.Info("listening for DAP connections", "addr", l.Addr().String())
		return dap.ServeListener(cmd.Context(), l, cfg)
	}
}
