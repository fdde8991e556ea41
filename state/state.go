package state

import (
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"

	"dpos_demo/types"
)

// MakeGenesisState 创世区块已经提交时的状态
func MakeGenesisState(genDoc *types.GenesisDoc, genesisBlock *types.Block) State {
	return State{
		ChainID:         genDoc.ChainID,
		InitialHeight:   genesisBlock.Height,
		LastBlockHeight: genesisBlock.Height,
		LastBlockHash:   genesisBlock.Hash(),
		LastBlockTime:   genesisBlock.Time,
		LastResultsHash: types.ReturnSets{}.Hash(),
	}
}

// 有限确定状态机的一个状态节点
// 每提交一个区块产生一个新的State
type State struct {
	// 初始设定值 const value
	ChainID       string `json:"chain_id"`
	InitialHeight int64  `json:"initial_height"`

	// 最后提交的区块的信息
	LastBlockHeight int64            `json:"last_block_height"`
	LastBlockHash   tmbytes.HexBytes `json:"last_block_hash"`
	LastBlockTime   time.Time        `json:"last_block_time"` // 区块头中的时间

	// 最后提交区块的return sets的merkle root
	LastResultsHash tmbytes.HexBytes `json:"last_results_hash"`

	// 最新不可逆区块的高度
	LIBHeight int64 `json:"lib_height"`
}

// 返回当前state的拷贝副本，deepcopy
func (state State) Copy() State {
	newState := state
	newState.LastBlockHash = types.CopyHash(state.LastBlockHash)
	newState.LastResultsHash = types.CopyHash(state.LastResultsHash)
	return newState
}

func (state State) IsEmpty() bool {
	return state.ChainID == ""
}

// NextHeader 下一个区块的区块头，时间由出块者给出
func (state State) NextHeader(now time.Time, minerPubKey string) *types.Header {
	return &types.Header{
		ChainID:           state.ChainID,
		Height:            state.LastBlockHeight + 1,
		Time:              now,
		PreviousBlockHash: types.CopyHash(state.LastBlockHash),
		MinerPubKey:       minerPubKey,
	}
}

// UpdateLIB 不可逆高度只增不减
func (state *State) UpdateLIB(height int64) bool {
	if height <= state.LIBHeight || height > state.LastBlockHeight {
		return false
	}
	state.LIBHeight = height
	return true
}
