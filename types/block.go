package types

import (
	"bytes"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// local blockchain维护的区块的基本单位
type Block struct {
	mtx    sync.Mutex
	Header `json:"header"`
	Data   `json:"data"`
}

// 检验一个block是否合法 - 这里的合法指的是没有明确的错误
func (block *Block) ValidateBasic() error {
	block.mtx.Lock()
	defer block.mtx.Unlock()

	if len(block.BlockHash) == 0 {
		return errors.New("block had no blockhash")
	}
	if len(block.Signature) == 0 {
		return errors.New("block had no signature")
	}
	if len(block.TxsHash) != 0 && !bytes.Equal(block.Data.Hash(), block.TxsHash) {
		return errors.New("block txs hash mismatch")
	}
	return nil
}

// 填补各种hash value
func (b *Block) fillHeader() {
	if b.TxsHash == nil {
		b.TxsHash = b.Data.Hash()
	}
}

func (b *Block) Hash() tmbytes.HexBytes {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	b.fillHeader()

	return b.Header.Hash()
}

type Header struct {
	ChainID string    `json:"chain_id"`
	Height  int64     `json:"height"`
	Time    time.Time `json:"time"` // 出块时间

	PreviousBlockHash tmbytes.HexBytes `json:"previous_block_hash"`
	TxsHash           tmbytes.HexBytes `json:"txs_hash"`
	MinerPubKey       string           `json:"miner_pub_key"`   // 出块者公钥hex
	ConsensusExtra    []byte           `json:"consensus_extra"` // 编码后的共识信息，由共识模块解析

	BlockHash tmbytes.HexBytes `json:"block_hash"` // 当前区块的hash
	Signature tmbytes.HexBytes `json:"signature"`  // 出块者对BlockHash的签名
}

func (h *Header) Hash() tmbytes.HexBytes {
	if h == nil {
		return nil
	}
	if h.BlockHash == nil {
		h.BlockHash = merkle.HashFromByteSlices([][]byte{
			[]byte(h.ChainID),
			[]byte(strconv.FormatInt(h.Height, 10)),
			[]byte(strconv.FormatInt(h.Time.UnixNano(), 10)),
			h.PreviousBlockHash,
			h.TxsHash,
			[]byte(h.MinerPubKey),
			HashOf(h.ConsensusExtra),
		})
	}
	return h.BlockHash
}

type Data struct {
	Txs  Txs    `json:"txs"`
	hash []byte // temp value
}

func (d *Data) Hash() tmbytes.HexBytes {
	if d == nil {
		return (Txs{}).Hash()
	}
	if d.hash == nil {
		d.hash = d.Txs.Hash()
	}
	return d.hash
}

func MakeGenesisBlock(chainID string, genesisTime time.Time) *Block {
	return &Block{
		Header: Header{
			ChainID:           chainID,
			Height:            0,
			Time:              genesisTime,
			PreviousBlockHash: []byte{},
		},
		Data: Data{Txs: Txs{}},
	}
}

// MakeBlock 返回一个头信息为空区块
func MakeBlock(height int64, txs Txs) *Block {
	return &Block{
		Header: Header{
			Height: height,
			Time:   time.Now(),
		},
		Data: Data{Txs: txs},
	}
}
