package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	tmtime "github.com/tendermint/tendermint/types/time"

	cfg "dpos_demo/config"
	"dpos_demo/privval"
	"dpos_demo/types"
)

// InitFilesCmd 初始化单节点的配置文件、出块者私钥和创世文件
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a single miner node",
	RunE:  initFiles,
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	if err := cfg.EnsureRoot(config.RootDir); err != nil {
		return err
	}

	configFile := config.ConfigFile()
	if tmos.FileExists(configFile) {
		logger.Info("Found config file", "path", configFile)
	} else {
		if err := cfg.WriteConfigFile(configFile, config); err != nil {
			return err
		}
		logger.Info("Generated config file", "path", configFile)
	}

	keyFile := config.MinerKeyFilePath()
	var pv *privval.FilePV
	if tmos.FileExists(keyFile) {
		pv = privval.LoadFilePV(keyFile)
		logger.Info("Found miner key", "keyFile", keyFile)
	} else {
		pv = privval.GenFilePV(keyFile)
		pv.Save()
		logger.Info("Generated miner key", "keyFile", keyFile)
	}

	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}
	genDoc := types.GenesisDoc{
		ChainID:        fmt.Sprintf("test-chain-%v", tmrand.Str(6)),
		GenesisTime:    tmtime.Now(),
		MiningInterval: types.DefaultMiningInterval,
		InitialMiners: []types.GenesisMiner{{
			PubKey: pv.GetPubKey(),
			Name:   config.Moniker,
		}},
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile)
	return nil
}
