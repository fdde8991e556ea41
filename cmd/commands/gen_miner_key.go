package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"

	"dpos_demo/privval"
)

// GenMinerKeyCmd 生成出块者的公私钥对，公钥同时是共识中出块者的标识
var GenMinerKeyCmd = &cobra.Command{
	Use:     "gen-miner-key",
	Aliases: []string{"gen_miner_key"},
	Short:   "Generate new miner keypair",
	PreRun:  deprecateSnakeCase,
	RunE:    genMinerKey,
}

func genMinerKey(cmd *cobra.Command, args []string) error {
	keyFile := config.MinerKeyFilePath()
	if tmos.FileExists(keyFile) {
		logger.Info("Found miner key", "keyFile", keyFile)
		return nil
	}

	pv := privval.GenFilePV(keyFile)
	jsbz, err := tmjson.Marshal(pv.Key)
	if err != nil {
		return err
	}
	pv.Save()

	fmt.Printf(`%v
`, string(jsbz))
	return nil
}

// ShowMinerCmd 打印出块者公钥，用于填写创世文件
var ShowMinerCmd = &cobra.Command{
	Use:     "show-miner",
	Aliases: []string{"show_miner"},
	Short:   "Show this node's miner public key",
	PreRun:  deprecateSnakeCase,
	RunE: func(cmd *cobra.Command, args []string) error {
		keyFile := config.MinerKeyFilePath()
		if !tmos.FileExists(keyFile) {
			return fmt.Errorf("miner key file %v does not exist", keyFile)
		}
		fmt.Println(privval.LoadFilePV(keyFile).GetPubKey())
		return nil
	},
}
