package types

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionHash(t *testing.T) {
	tx := NewTransaction("alice", "bank", "deposit", []byte("10"))
	hash := tx.Hash()
	assert.Len(t, hash, 32)

	// 签名不影响hash
	signed := NewTransaction("alice", "bank", "deposit", []byte("10"))
	signed.Signature = []byte("sig")
	assert.Equal(t, hash, signed.Hash())
	assert.Equal(t, tx.Key(), signed.Key())

	other := NewTransaction("alice", "bank", "deposit", []byte("10"))
	other.RefBlockNumber = 1
	assert.NotEqual(t, hash, other.Hash())

	assert.EqualValues(t, 5+4+7+2+3+8, signed.ComputeSize())
}

func TestReturnSetsMerge(t *testing.T) {
	first := NewExecutionReturnSet(HashFromString("1"), TxResultMined)
	first.StateChanges["a"] = []byte("1")
	first.StateChanges["b"] = []byte("1")
	second := NewExecutionReturnSet(HashFromString("2"), TxResultMined)
	second.StateDeletes["a"] = true
	second.StateChanges["c"] = []byte("2")
	third := NewExecutionReturnSet(HashFromString("3"), TxResultMined)
	third.StateChanges["a"] = []byte("3")

	changes, deletes := ReturnSets{first, second}.Merge()
	assert.Equal(t, map[string][]byte{"b": []byte("1"), "c": []byte("2")}, changes)
	assert.Equal(t, map[string]bool{"a": true}, deletes)

	changes, deletes = ReturnSets{first, second, third}.Merge()
	assert.Equal(t, []byte("3"), changes["a"], "后面的写覆盖前面的删除")
	assert.Empty(t, deletes)

	assert.NotEqual(t, ReturnSets{first, second}.Hash(), ReturnSets{second, first}.Hash(), "hash与顺序有关")
	assert.Equal(t, first.Hash(), first.Hash())
}

func TestBlockValidateBasic(t *testing.T) {
	block := MakeBlock(1, Txs{NewTransaction("alice", "bank", "m", nil)})
	assert.Error(t, block.ValidateBasic(), "没有block hash")

	hash := block.Hash()
	assert.Equal(t, block.Data.Hash(), block.TxsHash)
	assert.Error(t, block.ValidateBasic(), "没有签名")

	block.Signature = []byte("sig")
	assert.NoError(t, block.ValidateBasic())
	assert.Equal(t, hash, block.Hash(), "block hash只计算一次")

	block.TxsHash = HashFromString("other")
	assert.Error(t, block.ValidateBasic())
}

func TestGenesisDoc(t *testing.T) {
	genDoc := &GenesisDoc{ChainID: "test-chain"}
	assert.Error(t, genDoc.ValidateAndComplete(), "没有初始出块者")

	genDoc.InitialMiners = []GenesisMiner{{PubKey: "aa"}, {PubKey: "aa"}}
	assert.Error(t, genDoc.ValidateAndComplete(), "出块者重复")

	genDoc.InitialMiners = []GenesisMiner{{PubKey: "aa", Name: "a"}, {PubKey: "bb", Name: "b"}}
	require.NoError(t, genDoc.ValidateAndComplete())
	assert.EqualValues(t, DefaultMiningInterval, genDoc.MiningInterval)
	assert.False(t, genDoc.GenesisTime.IsZero())
	assert.Equal(t, []string{"aa", "bb"}, genDoc.MinerPubKeys())

	dir, err := ioutil.TempDir("", "genesis_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, "genesis.json")

	genDoc.GenesisTime = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, genDoc.SaveAs(file))
	loaded, err := GenesisDocFromFile(file)
	require.NoError(t, err)
	assert.Equal(t, genDoc.ChainID, loaded.ChainID)
	assert.True(t, genDoc.GenesisTime.Equal(loaded.GenesisTime))
	assert.Equal(t, genDoc.InitialMiners, loaded.InitialMiners)
}
