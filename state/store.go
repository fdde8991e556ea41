package state

import (
	"github.com/pkg/errors"

	"dpos_demo/store"
	"dpos_demo/types"
)

const stateKey = "state"

// 数据持久化接口，store.KVStore实现
type Store interface {
	StateReader
	TransactionResultSink

	CommitBlock(block *types.Block, sets types.ReturnSets, results []*types.TransactionResult) error
	LoadBlock(height int64) (*types.Block, error)

	SaveMeta(key string, v interface{}) error
	LoadMeta(key string, v interface{}) error
}

func SaveState(db Store, state State) error {
	return db.SaveMeta(stateKey, state)
}

// LoadState 没有保存过时返回空的State
func LoadState(db Store) (State, error) {
	var state State
	err := db.LoadMeta(stateKey, &state)
	if errors.Cause(err) == store.ErrKeyNotFound {
		return State{}, nil
	}
	return state, err
}

// LoadStateFromDBOrGenesis 第一次启动时写入创世区块
func LoadStateFromDBOrGenesis(db Store, genDoc *types.GenesisDoc) (State, error) {
	state, err := LoadState(db)
	if err != nil {
		return State{}, err
	}
	if !state.IsEmpty() {
		if state.ChainID != genDoc.ChainID {
			return State{}, errors.Errorf("chain id mismatch: db %v, genesis %v", state.ChainID, genDoc.ChainID)
		}
		return state, nil
	}

	genesisBlock := types.MakeGenesisBlock(genDoc.ChainID, genDoc.GenesisTime)
	state = MakeGenesisState(genDoc, genesisBlock)
	if err := db.CommitBlock(genesisBlock, nil, nil); err != nil {
		return State{}, errors.Wrap(err, "commit genesis block")
	}
	if err := SaveState(db, state); err != nil {
		return State{}, errors.Wrap(err, "save genesis state")
	}
	return state, nil
}
