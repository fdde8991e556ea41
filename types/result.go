package types

import (
	"sort"
	"strconv"

	"github.com/tendermint/tendermint/crypto/merkle"
)

type TransactionResultStatus int

const (
	TxResultNotExisted TransactionResultStatus = iota
	TxResultMined
	TxResultFailed
	TxResultUnexecutable
	TxResultCanceled
)

func (s TransactionResultStatus) String() string {
	switch s {
	case TxResultMined:
		return "Mined"
	case TxResultFailed:
		return "Failed"
	case TxResultUnexecutable:
		return "Unexecutable"
	case TxResultCanceled:
		return "Canceled"
	default:
		return "NotExisted"
	}
}

type TransactionResult struct {
	TransactionID Hash                    `json:"transaction_id"`
	Status        TransactionResultStatus `json:"status"`
	Error         string                  `json:"error"`
	ReturnValue   []byte                  `json:"return_value"`
	BlockNumber   int64                   `json:"block_number"`
	Logs          []*LogEvent             `json:"logs"`
}

// ExecutionReturnSet 一笔交易最终需要提交的状态变化
type ExecutionReturnSet struct {
	TransactionID Hash                    `json:"transaction_id"`
	Status        TransactionResultStatus `json:"status"`
	StateChanges  map[string][]byte       `json:"state_changes"`
	StateDeletes  map[string]bool         `json:"state_deletes"`
	StateAccesses map[string]bool         `json:"state_accesses"`
	ReturnValue   []byte                  `json:"return_value"`
}

func NewExecutionReturnSet(txID Hash, status TransactionResultStatus) *ExecutionReturnSet {
	return &ExecutionReturnSet{
		TransactionID: txID,
		Status:        status,
		StateChanges:  make(map[string][]byte),
		StateDeletes:  make(map[string]bool),
		StateAccesses: make(map[string]bool),
	}
}

// ReturnSets 合并一组return set，后面的覆盖前面的
type ReturnSets []*ExecutionReturnSet

func (sets ReturnSets) Merge() (changes map[string][]byte, deletes map[string]bool) {
	changes = make(map[string][]byte)
	deletes = make(map[string]bool)
	for _, set := range sets {
		for k, v := range set.StateChanges {
			changes[k] = v
			delete(deletes, k)
		}
		for k := range set.StateDeletes {
			deletes[k] = true
			delete(changes, k)
		}
	}
	return changes, deletes
}

// Hash 每个return set按key排序后求hash，再求merkle root
func (sets ReturnSets) Hash() []byte {
	bzs := make([][]byte, len(sets))
	for i, set := range sets {
		bzs[i] = set.Hash()
	}
	return merkle.HashFromByteSlices(bzs)
}

func (set *ExecutionReturnSet) Hash() Hash {
	keys := make([]string, 0, len(set.StateChanges)+len(set.StateDeletes))
	for k := range set.StateChanges {
		keys = append(keys, k)
	}
	for k := range set.StateDeletes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bzs := make([][]byte, 0, 2*len(keys)+3)
	bzs = append(bzs, set.TransactionID, []byte(strconv.Itoa(int(set.Status))), set.ReturnValue)
	for _, k := range keys {
		// 删除的key对应空值
		bzs = append(bzs, []byte(k), set.StateChanges[k])
	}
	return HashOf(bzs...)
}
