package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctagard/gdbmi-dap/internal/version"
)

func NewVersionCommand(a *app) *cobra.Command {
	var check bool

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Prints version information",
		Long: `Prints version information.

	With --check the latest release is looked up on GitHub.`,
		RunE: getVersion(a, &check),
		Args: cobra.NoArgs,
	}

	versionCmd.Flags().BoolVar(&check, "check", false, "Check GitHub for a newer release")

	return versionCmd
}

func getVersion(a *app, check *bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.teardown()
		out := cmd.OutOrStdout()

		if !*check {
			fmt.Fprintf(out, "gdbmi-dap version %s\n", version.Version)
			return nil
		}

		info, err := version.NewChecker().CheckForUpdates(cmd.Context())
		if err != nil {
			a.log.WithName("version").Error(err, "Could not check for updates")
			return err
		}
		fmt.Fprintln(out, info.UpdateMessage())
		return nil
	}
}
