package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	nm "dpos_demo/node"
)

// AddNodeFlags exposes some common configuration options on the command-line
// These are exposed for convenience of commands embedding a dpos node
func AddNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("moniker", config.Moniker, "node name")
	cmd.Flags().String("db_backend", config.DBBackend, "database backend: goleveldb | memdb")
	cmd.Flags().String("db_dir", config.DBPath, "database directory")
}

// NewRunNodeCmd returns the command that allows the CLI to start a node.
func NewRunNodeCmd(nodeProvider nm.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the dpos node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetString("moniker"); cmd.Flags().Changed("moniker") {
				config.Moniker = v
			}
			if v, _ := cmd.Flags().GetString("db_backend"); cmd.Flags().Changed("db_backend") {
				config.DBBackend = v
			}
			if v, _ := cmd.Flags().GetString("db_dir"); cmd.Flags().Changed("db_dir") {
				config.DBPath = v
			}
			if err := config.ValidateBasic(); err != nil {
				return err
			}

			n, err := nodeProvider(config, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			if err := n.Start(); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			logger.Info("Started node", "moniker", config.Moniker)

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "error", err)
					}
				}
			})

			// Run forever.
			select {}
		},
	}

	AddNodeFlags(cmd)
	return cmd
}
