package mempool

import (
	"sync"
	"sync/atomic"

	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"

	"dpos_demo/config"
	"dpos_demo/libs/metric"
	"dpos_demo/types"
)

func NewListMempool(config *config.MempoolConfig, height int64, options ...ListMempoolOption) *ListMempool {
	mem := &ListMempool{
		height: height,
		config: config,
		txs:    clist.New(),
		metric: newMemMetric(),
		logger: log.NewNopLogger(),
	}

	mem.txsAvailable = make(chan struct{}, 1)

	for _, option := range options {
		option(mem)
	}

	return mem
}

// ListMempool 按交易到达顺序排列的交易池
type ListMempool struct {
	// Atomic integers
	height   int64 // the last block Update()'d to
	txsBytes int64 // total size of mempool, in bytes

	// 有交易时非阻塞地通知一次，缓冲为1
	txsAvailable chan struct{}

	config *config.MempoolConfig

	updateMtx sync.RWMutex
	preCheck  PreCheckFunc

	txs    *clist.CList
	txsMap sync.Map // tx.Key() -> *clist.CElement

	metric *memMetric

	logger log.Logger
}

type ListMempoolOption func(memppol *ListMempool)

func SetPreCheck(precheck PreCheckFunc) ListMempoolOption {
	return func(mem *ListMempool) {
		mem.preCheck = precheck
	}
}

func (mem *ListMempool) SetLogger(logger log.Logger) {
	mem.logger = logger
}

// Metric 返回mempool的统计信息
func (mem *ListMempool) Metric() metric.MetricItem {
	return mem.metric
}

func (mem *ListMempool) CheckTx(tx *types.Transaction) error {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	txSize := tx.ComputeSize()
	if err := mem.isFull(txSize); err != nil {
		return err
	}
	if mem.preCheck != nil {
		if err := mem.preCheck(tx); err != nil {
			return ErrPreCheck{err}
		}
	}

	// 先判断tx是否已经在mempool中
	if _, ok := mem.txsMap.Load(tx.Key()); ok {
		return ErrTxInMap
	}

	memTx := &mempoolTx{
		height: mem.height,
		tx:     tx,
	}
	mem.addTx(memTx)
	mem.logger.Debug("added tx", "tx", tx.Hash(), "total", mem.Size())
	mem.notifyTxsAvailable()

	return nil
}

func (mem *ListMempool) isFull(txSize int64) error {
	var (
		memSize  = mem.Size()
		txsBytes = mem.TxsBytes()
	)
	if memSize >= mem.config.Size || txSize+txsBytes > mem.config.MaxTxsBytes {
		return ErrMempoolIsFull{
			NumTxs:      memSize,
			MaxTxs:      mem.config.Size,
			TxsBytes:    txsBytes,
			MaxTxsBytes: mem.config.MaxTxsBytes,
		}
	}
	return nil
}

// ReapTxs 按顺序打包，直到总大小超过maxBytes
func (mem *ListMempool) ReapTxs(maxBytes int64) types.Txs {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	var totalBytes int64
	txs := make(types.Txs, 0, mem.txs.Len())
	for e := mem.txs.Front(); e != nil; e = e.Next() {
		memTx := e.Value.(*mempoolTx)
		size := memTx.tx.ComputeSize()
		if maxBytes > -1 && totalBytes+size > maxBytes {
			break
		}
		totalBytes += size
		txs = append(txs, memTx.tx)
	}
	mem.metric.MarkReaped(len(txs))
	return txs
}

func (mem *ListMempool) ReapMaxTxs(max int) types.Txs {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	if max < 0 {
		max = mem.txs.Len()
	}

	txs := make(types.Txs, 0, max)
	for e := mem.txs.Front(); e != nil && len(txs) < max; e = e.Next() {
		memTx := e.Value.(*mempoolTx)
		txs = append(txs, memTx.tx)
	}
	mem.metric.MarkReaped(len(txs))
	return txs
}

// Lock 锁定mempool的updateMtx读写锁的写锁
func (mem *ListMempool) Lock() {
	mem.updateMtx.Lock()
}

// Unlock 释放mempool的updateMtx读写锁的写锁
func (mem *ListMempool) Unlock() {
	mem.updateMtx.Unlock()
}

// Update 删除已经提交的交易，caller负责加锁
func (mem *ListMempool) Update(height int64, txs types.Txs) error {
	atomic.StoreInt64(&mem.height, height)

	removed := 0
	for _, tx := range txs {
		if e, ok := mem.txsMap.Load(tx.Key()); ok {
			mem.removeTx(tx, e.(*clist.CElement))
			removed++
		}
	}
	mem.metric.MarkRemoved(removed)

	if mem.Size() > 0 {
		mem.notifyTxsAvailable()
	}
	mem.metric.MarkTxsNum(mem.Size())
	mem.metric.MarkTotalTxsBytes(mem.TxsBytes())
	return nil
}

func (mem *ListMempool) TxsAvailable() <-chan struct{} {
	return mem.txsAvailable
}

func (mem *ListMempool) notifyTxsAvailable() {
	if mem.Size() == 0 {
		return
	}
	select {
	case mem.txsAvailable <- struct{}{}:
	default:
	}
}

func (mem *ListMempool) Flush() {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	for e := mem.txs.Front(); e != nil; e = e.Next() {
		mem.txs.Remove(e)
		e.DetachPrev()
	}
	mem.txsMap.Range(func(key, _ interface{}) bool {
		mem.txsMap.Delete(key)
		return true
	})
	atomic.StoreInt64(&mem.txsBytes, 0)
	mem.metric.MarkTxsNum(0)
	mem.metric.MarkTotalTxsBytes(0)
}

func (mem *ListMempool) Size() int {
	return mem.txs.Len()
}

func (mem *ListMempool) TxsBytes() int64 {
	return atomic.LoadInt64(&mem.txsBytes)
}

// addTx 将tx加入到mempool的双向链表；
// 并且更新快速查询表txMap和mempool的tx总大小
func (mem *ListMempool) addTx(memTx *mempoolTx) {
	e := mem.txs.PushBack(memTx)
	mem.txsMap.Store(memTx.tx.Key(), e)
	atomic.AddInt64(&mem.txsBytes, memTx.tx.ComputeSize())
	mem.metric.MarkTxsNum(mem.Size())
	mem.metric.MarkTotalTxsBytes(mem.TxsBytes())
}

func (mem *ListMempool) removeTx(tx *types.Transaction, elem *clist.CElement) {
	mem.txs.Remove(elem)
	elem.DetachPrev()
	mem.txsMap.Delete(tx.Key())
	atomic.AddInt64(&mem.txsBytes, -tx.ComputeSize())
}

func (mem *ListMempool) TxsWaitChan() <-chan struct{} {
	return mem.txs.WaitChan()
}

func (mem *ListMempool) TxsFront() *clist.CElement {
	return mem.txs.Front()
}

// ------------------------------

type mempoolTx struct {
	height int64 // 加入mempool时的高度
	tx     *types.Transaction
}

// Height returns the height for this transaction
func (memTx *mempoolTx) Height() int64 {
	return atomic.LoadInt64(&memTx.height)
}
