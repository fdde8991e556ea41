package types

import (
	"errors"
	"fmt"
	"io/ioutil"
	"time"

	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/tempfile"
)

const (
	MaxChainIDLen = 50

	DefaultMiningInterval = 4000 // ms
)

// GenesisMiner 创世时的初始出块者
type GenesisMiner struct {
	PubKey string `json:"pub_key"` // hex
	Name   string `json:"name"`
}

// GenesisDoc 创世文件，描述初始出块者集合以及出块间隔
type GenesisDoc struct {
	ChainID        string         `json:"chain_id"`
	GenesisTime    time.Time      `json:"genesis_time"`
	MiningInterval int64          `json:"mining_interval"` // ms
	InitialMiners  []GenesisMiner `json:"initial_miners"`
}

func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := tmjson.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(file, genDocBytes, 0644)
}

// ValidateAndComplete 检查必填字段并补全默认值
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.ChainID == "" {
		return errors.New("genesis doc must include non-empty chain_id")
	}
	if len(genDoc.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id in genesis doc is too long (max: %d)", MaxChainIDLen)
	}
	if len(genDoc.InitialMiners) == 0 {
		return errors.New("genesis doc must include at least one initial miner")
	}
	seen := make(map[string]bool, len(genDoc.InitialMiners))
	for i, m := range genDoc.InitialMiners {
		if m.PubKey == "" {
			return fmt.Errorf("initial miner %d has empty pub_key", i)
		}
		if seen[m.PubKey] {
			return fmt.Errorf("duplicate initial miner %v", m.PubKey)
		}
		seen[m.PubKey] = true
	}
	if genDoc.MiningInterval <= 0 {
		genDoc.MiningInterval = DefaultMiningInterval
	}
	if genDoc.GenesisTime.IsZero() {
		genDoc.GenesisTime = time.Now()
	}
	return nil
}

func (genDoc *GenesisDoc) MinerPubKeys() []string {
	keys := make([]string, len(genDoc.InitialMiners))
	for i, m := range genDoc.InitialMiners {
		keys[i] = m.PubKey
	}
	return keys
}

func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	if err := tmjson.Unmarshal(jsonBlob, &genDoc); err != nil {
		return nil, err
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}
	return &genDoc, nil
}

func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := ioutil.ReadFile(genDocFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GenesisDoc file: %w", err)
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading GenesisDoc at %s: %w", genDocFile, err)
	}
	return genDoc, nil
}
