package types

import (
	"strconv"

	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

const (
	MempoolReap = "mempool_reap"
	MempoolAdd  = "mempool_add"
)

// Transaction 一次合约调用
type Transaction struct {
	From           Address          `json:"from"`
	To             Address          `json:"to"`
	MethodName     string           `json:"method_name"`
	Params         []byte           `json:"params"` // 由合约自行解码
	RefBlockNumber int64            `json:"ref_block_number"`
	Signature      tmbytes.HexBytes `json:"signature"`

	hash Hash // cached
}

func NewTransaction(from, to Address, method string, params []byte) *Transaction {
	return &Transaction{
		From:       from,
		To:         to,
		MethodName: method,
		Params:     params,
	}
}

// Hash 不包含签名
func (tx *Transaction) Hash() Hash {
	if tx == nil {
		return nil
	}
	if tx.hash == nil {
		tx.hash = HashOf(
			[]byte(tx.From),
			[]byte(tx.To),
			[]byte(tx.MethodName),
			tx.Params,
			[]byte(strconv.FormatInt(tx.RefBlockNumber, 10)),
		)
	}
	return tx.hash
}

func (tx *Transaction) ComputeSize() int64 {
	return int64(len(tx.From) + len(tx.To) + len(tx.MethodName) + len(tx.Params) + len(tx.Signature) + 8)
}

// ===== tx array =====
type Txs []*Transaction

func ComputeSizeForTxs(txs Txs) int64 {
	var dataSize int64
	for _, tx := range txs {
		dataSize += tx.ComputeSize()
	}
	return dataSize
}

func (txs Txs) Append(tx Txs) Txs {
	return append(txs, tx...)
}

// 返回交易形成的merkle tree的根value
func (txs Txs) Hash() []byte {
	txBzs := make([][]byte, len(txs))
	for i := 0; i < len(txs); i++ {
		txBzs[i] = txs[i].Hash()
	}
	return merkle.HashFromByteSlices(txBzs)
}

// Key 交易在mempool中的索引
func (tx *Transaction) Key() string {
	return string(tmhash.Sum(tx.Hash()))
}
