package mempool

import (
	"dpos_demo/types"
)

type Mempool interface {
	// CheckTx检验一个新交易是否合法，来决定能否将其加入到mempool中
	CheckTx(tx *types.Transaction) error

	// ReapTxs从mempool中打包交易，打包交易的大小小于maxBytes
	// maxBytes为负数表示不限制
	ReapTxs(maxBytes int64) types.Txs

	// ReapMaxTxs从mempool中按到达顺序取出caller指定数量的交易
	// 如果max是负数则表示取出mempool所有的交易
	ReapMaxTxs(max int) types.Txs

	// Lock locks the mempool，更新mempool前必须lock mempool
	Lock()

	// Unlock the Mempool
	Unlock()

	// Update 已经提交的交易从mempool中删去
	// NOTE: 该函数只能在block被提交后才能调用
	// NOTE: caller负责Lock/Unlock
	Update(height int64, txs types.Txs) error

	// TxsAvailable 每个高度第一次有交易时通知一次
	TxsAvailable() <-chan struct{}

	// Flush将mempool中的所有交易清空
	Flush()

	// Size返回mempool中的交易条数
	Size() int

	// TxsBytes返回mempool所有交易的byte大小
	TxsBytes() int64
}

//--------------------------------------------------------------------------------

// PreCheckFunc 加入mempool之前对交易做的检查，例如签名
type PreCheckFunc func(*types.Transaction) error

// PreCheckMaxBytes 交易大小不能超过maxBytes
func PreCheckMaxBytes(maxBytes int) PreCheckFunc {
	return func(tx *types.Transaction) error {
		if size := tx.ComputeSize(); size > int64(maxBytes) {
			return ErrTxTooLarge{Max: maxBytes, Actual: int(size)}
		}
		return nil
	}
}
