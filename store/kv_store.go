package store

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	"github.com/tendermint/tm-db/memdb"

	"dpos_demo/types"
)

const (
	prefixState  = "state/"
	prefixResult = "result/"
	prefixBlock  = "block/"
	prefixMeta   = "meta/"
)

var (
	ErrKeyNotFound = errors.New("key not found")
)

// NewKVStore goleveldb作为后端
func NewKVStore(name, dir string, logger log.Logger) (*KVStore, error) {
	db, err := NewDB(name, GoLevelDBBackend, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open %v in %v", name, dir)
	}
	return NewKVStoreWithDB(db, logger), nil
}

// NewMemKVStore 测试用
func NewMemKVStore(logger log.Logger) *KVStore {
	return NewKVStoreWithDB(memdb.NewDB(), logger)
}

func NewKVStoreWithDB(kvdb tmdb.DB, logger log.Logger) *KVStore {
	return &KVStore{kvDB: kvdb, logger: logger}
}

// KVStore 世界状态、交易结果和区块的持久化
// state table: key=state/{key}; value=raw bytes
// result table: key=result/{txid}; value=json(TransactionResult)
// block table: key=block/{height}; value=json(Block)
type KVStore struct {
	kvDB tmdb.DB

	logger log.Logger
}

func (kv *KVStore) SetLogger(logger log.Logger) {
	kv.logger = logger
}

func genKey(table string, primaryKey interface{}) []byte {
	buffer := new(bytes.Buffer)
	buffer.WriteString(table)
	switch pk := primaryKey.(type) {
	case string:
		buffer.WriteString(pk)
	case []byte:
		buffer.Write(pk)
	case int64:
		// 补齐到固定宽度保证按高度有序
		buffer.WriteString(fmt.Sprintf("%020d", pk))
	}
	return buffer.Bytes()
}

// Get 实现state.StateReader，不存在时返回(nil, false, nil)
func (kv *KVStore) Get(key string) ([]byte, bool, error) {
	bz, err := kv.kvDB.Get(genKey(prefixState, key))
	if err != nil {
		return nil, false, err
	}
	if bz == nil {
		return nil, false, nil
	}
	return bz, true, nil
}

// Set 直接写入世界状态，用于创世和测试
func (kv *KVStore) Set(key string, value []byte) error {
	return kv.kvDB.Set(genKey(prefixState, key), value)
}

// CommitBlock 原子地写入区块的状态变更、交易结果和区块本身
func (kv *KVStore) CommitBlock(block *types.Block, sets types.ReturnSets, results []*types.TransactionResult) error {
	var batch tmdb.Batch
	defer func() {
		if batch != nil {
			batch.Close()
		}
	}()

	batch = kv.kvDB.NewBatch()
	changes, deletes := sets.Merge()
	for key, value := range changes {
		if err := batch.Set(genKey(prefixState, key), value); err != nil {
			return err
		}
	}
	for key := range deletes {
		if err := batch.Delete(genKey(prefixState, key)); err != nil {
			return err
		}
	}

	for _, result := range results {
		bz, err := jsoniter.Marshal(result)
		if err != nil {
			return err
		}
		if err := batch.Set(genKey(prefixResult, result.TransactionID.String()), bz); err != nil {
			return err
		}
	}

	if block != nil {
		bz, err := jsoniter.Marshal(block)
		if err != nil {
			return err
		}
		if err := batch.Set(genKey(prefixBlock, block.Height), bz); err != nil {
			return err
		}
	}

	if err := batch.WriteSync(); err != nil {
		return err
	}
	if err := batch.Close(); err != nil {
		return err
	}
	batch = nil

	kv.logger.Debug("commit block", "changes", len(changes), "deletes", len(deletes), "results", len(results))
	return nil
}

// AddTransactionResult 实现TransactionResultSink
func (kv *KVStore) AddTransactionResult(result *types.TransactionResult) error {
	bz, err := jsoniter.Marshal(result)
	if err != nil {
		return err
	}
	return kv.kvDB.Set(genKey(prefixResult, result.TransactionID.String()), bz)
}

func (kv *KVStore) GetTransactionResult(txID types.Hash) (*types.TransactionResult, error) {
	bz, err := kv.kvDB.Get(genKey(prefixResult, txID.String()))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, errors.Wrapf(ErrKeyNotFound, "result of %v", txID)
	}
	result := &types.TransactionResult{}
	return result, jsoniter.Unmarshal(bz, result)
}

func (kv *KVStore) LoadBlock(height int64) (*types.Block, error) {
	bz, err := kv.kvDB.Get(genKey(prefixBlock, height))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, errors.Wrapf(ErrKeyNotFound, "block %d", height)
	}
	block := &types.Block{}
	return block, jsoniter.Unmarshal(bz, block)
}

// SaveMeta 保存任意可以json序列化的元数据，例如链的状态
func (kv *KVStore) SaveMeta(key string, v interface{}) error {
	bz, err := jsoniter.Marshal(v)
	if err != nil {
		return err
	}
	return kv.kvDB.SetSync(genKey(prefixMeta, key), bz)
}

func (kv *KVStore) LoadMeta(key string, v interface{}) error {
	bz, err := kv.kvDB.Get(genKey(prefixMeta, key))
	if err != nil {
		return err
	}
	if bz == nil {
		return errors.Wrapf(ErrKeyNotFound, "meta %v", key)
	}
	return jsoniter.Unmarshal(bz, v)
}

func (kv *KVStore) GetDB() tmdb.DB {
	return kv.kvDB
}

func (kv *KVStore) Close() error {
	return kv.kvDB.Close()
}
