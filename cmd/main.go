package main

import (
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "dpos_demo/cmd/commands"
	nm "dpos_demo/node"
)

func main() {
	rootCmd := cmd.RootCmd

	// NOTE:
	// Users wishing to supply a genesis doc file from another source or
	// provide their own DB implementation can copy this file and use
	// something other than the DefaultNewNode function
	nodeFunc := nm.DefaultNewNode

	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenMinerKeyCmd,
		cmd.ShowMinerCmd,
		cmd.GenGenesisCmd,
		cmd.InitDBCmd,
		cmd.VersionCmd,
		cmd.NewRunNodeCmd(nodeFunc),
		cli.NewCompletionCmd(rootCmd, true),
	)

	baseCmd := cli.PrepareBaseCmd(rootCmd, "DPOS", os.ExpandEnv(filepath.Join("$HOME", ".dpos_demo")))
	if err := baseCmd.Execute(); err != nil {
		panic(err)
	}
}
