package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmtime "github.com/tendermint/tendermint/types/time"

	"dpos_demo/privval"
	"dpos_demo/types"
)

var (
	chainID        string
	miningInterval int64
	minerPubKeys   string
)

var GenGenesisCmd = &cobra.Command{
	Use:     "gen-genesis",
	Aliases: []string{"gen_genesis"},
	Short:   "Generate a genesis file with the initial miners",
	PreRun:  deprecateSnakeCase,
	RunE:    genGenesisFile,
}

func init() {
	GenGenesisCmd.Flags().StringVar(&chainID, "chain-id", "test-chain", "链名，不指定则使用test-chain")
	GenGenesisCmd.Flags().Int64Var(&miningInterval, "mining-interval", types.DefaultMiningInterval, "出块间隔(ms)")
	GenGenesisCmd.Flags().StringVar(&minerPubKeys, "miners", "", "初始出块者的公钥，逗号分隔，不指定则只有本节点")
}

func genGenesisFile(cmd *cobra.Command, args []string) error {
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}

	keys := splitAndTrimEmpty(minerPubKeys, ",", " ")
	if len(keys) == 0 {
		keys = []string{privval.LoadOrGenFilePV(config.MinerKeyFilePath()).GetPubKey()}
	}
	miners := make([]types.GenesisMiner, len(keys))
	for i, key := range keys {
		miners[i] = types.GenesisMiner{
			PubKey: key,
			Name:   fmt.Sprintf("miner-%v", i+1),
		}
	}

	genDoc := types.GenesisDoc{
		ChainID:        chainID,
		GenesisTime:    tmtime.Now(),
		MiningInterval: miningInterval,
		InitialMiners:  miners,
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile, "miners", len(miners))
	return nil
}
