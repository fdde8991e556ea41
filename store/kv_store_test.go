package store

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"dpos_demo/types"
)

type cleanup func()

func newTestKVStore(t *testing.T) (*KVStore, cleanup) {
	dir, err := ioutil.TempDir("", "kv_store_test")
	require.NoError(t, err)
	kv, err := NewKVStore("test", dir, log.NewFilter(log.TestingLogger(), log.AllowDebug()))
	require.NoError(t, err)
	return kv, func() {
		kv.Close()
		os.RemoveAll(dir)
	}
}

func TestKVStoreGetSet(t *testing.T) {
	kv, clean := newTestKVStore(t)
	defer clean()

	_, ok, err := kv.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set("k", []byte("v")))
	v, ok, err := kv.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestKVStoreCommitBlock(t *testing.T) {
	kv := NewMemKVStore(log.TestingLogger())
	require.NoError(t, kv.Set("gone", []byte("old")))

	first := types.NewExecutionReturnSet(types.HashFromString("tx1"), types.TxResultMined)
	first.StateChanges["a"] = []byte("1")
	first.StateChanges["b"] = []byte("1")
	second := types.NewExecutionReturnSet(types.HashFromString("tx2"), types.TxResultMined)
	second.StateChanges["a"] = []byte("2")
	second.StateDeletes["gone"] = true

	block := types.MakeBlock(1, nil)
	block.Time = time.Now()
	results := []*types.TransactionResult{
		{TransactionID: first.TransactionID, Status: types.TxResultMined, BlockNumber: 1},
		{TransactionID: second.TransactionID, Status: types.TxResultMined, BlockNumber: 1},
	}
	require.NoError(t, kv.CommitBlock(block, types.ReturnSets{first, second}, results))

	a, _, _ := kv.Get("a")
	b, _, _ := kv.Get("b")
	_, ok, _ := kv.Get("gone")
	assert.Equal(t, []byte("2"), a, "后面的交易覆盖前面的")
	assert.Equal(t, []byte("1"), b)
	assert.False(t, ok, "gone应该被删除")

	result, err := kv.GetTransactionResult(second.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, types.TxResultMined, result.Status)

	loaded, err := kv.LoadBlock(1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, loaded.Height)

	_, err = kv.LoadBlock(2)
	assert.Equal(t, ErrKeyNotFound, errors.Cause(err))
}

func TestKVStoreMeta(t *testing.T) {
	kv := NewMemKVStore(log.TestingLogger())

	type meta struct {
		Height int64  `json:"height"`
		Hash   string `json:"hash"`
	}
	require.NoError(t, kv.SaveMeta("state", meta{Height: 3, Hash: "abc"}))

	var loaded meta
	require.NoError(t, kv.LoadMeta("state", &loaded))
	assert.Equal(t, meta{Height: 3, Hash: "abc"}, loaded)

	assert.Equal(t, ErrKeyNotFound, errors.Cause(kv.LoadMeta("nothing", &loaded)))
}
