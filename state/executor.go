package state

import (
	"bytes"
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"dpos_demo/libs/metric"
	"dpos_demo/mempool"
	"dpos_demo/types"
)

// TxExecutor 在partial之上执行一批交易，ParallelExecutor实现
type TxExecutor interface {
	Execute(ctx context.Context, header *types.Header, txs types.Txs, partial types.ReturnSets) ([]*types.ExecutionReturnSet, error)
}

type BlockExecutor interface {
	// CreateBlock 从mempool按照交易到达的顺序打包并执行交易
	// 被取消的交易不会打包，留在mempool中等待下一个区块
	CreateBlock(ctx context.Context, state State, header *types.Header) (*types.Block, types.ReturnSets, error)

	// Apply一个指定的区块，sets为nil时重新执行区块中的交易
	// 提交成功后返回新的state
	ApplyBlock(ctx context.Context, state State, block *types.Block, sets types.ReturnSets) (State, error)

	SetLogger(logger log.Logger)

	Metric() metric.MetricItem
}

type BlockExecutorOption func(exec *blockExecutor)

// SetMaxTxsPerBlock 负数表示不限制
func SetMaxTxsPerBlock(n int) BlockExecutorOption {
	return func(exec *blockExecutor) {
		exec.maxTxs = n
	}
}

// SetExecutionTimeout 打包区块时执行交易的时限，0表示不限制
func SetExecutionTimeout(d time.Duration) BlockExecutorOption {
	return func(exec *blockExecutor) {
		exec.timeout = d
	}
}

func NewBlockExecutor(db Store, mempool mempool.Mempool, executor TxExecutor, options ...BlockExecutorOption) BlockExecutor {
	blockexec := &blockExecutor{
		db:       db,
		mempool:  mempool,
		executor: executor,
		maxTxs:   -1,
		metric:   metric.NewRegistryItem(),
		logger:   log.NewNopLogger(),
	}
	for _, option := range options {
		option(blockexec)
	}
	return blockexec
}

type blockExecutor struct {
	db       Store
	mempool  mempool.Mempool
	executor TxExecutor

	maxTxs  int
	timeout time.Duration

	metric *metric.RegistryItem
	logger log.Logger
}

// SetLogger implements BlockExecutor
func (exec *blockExecutor) SetLogger(logger log.Logger) {
	exec.logger = logger
}

// Metric implements BlockExecutor
func (exec *blockExecutor) Metric() metric.MetricItem {
	return exec.metric
}

// CreateBlock implements BlockExecutor
// 区块头的hash和签名由调用者在填好共识数据后补上
func (exec *blockExecutor) CreateBlock(
	ctx context.Context,
	state State,
	header *types.Header,
) (*types.Block, types.ReturnSets, error) {
	start := time.Now()
	if exec.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, exec.timeout)
		defer cancel()
	}

	txs := exec.mempool.ReapMaxTxs(exec.maxTxs)
	sets, err := exec.executor.Execute(ctx, header, txs, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "execute txs")
	}

	// 并行执行返回的顺序按分组排列，这里恢复成交易的顺序
	byID := make(map[string]*types.ExecutionReturnSet, len(sets))
	for _, set := range sets {
		byID[string(set.TransactionID)] = set
	}
	included := make(types.Txs, 0, len(txs))
	ordered := make(types.ReturnSets, 0, len(txs))
	for _, tx := range txs {
		set, ok := byID[string(tx.Hash())]
		if !ok || set.Status == types.TxResultCanceled {
			continue
		}
		included = append(included, tx)
		ordered = append(ordered, set)
	}

	block := &types.Block{
		Header: *header,
		Data:   types.Data{Txs: included},
	}
	block.TxsHash = block.Data.Hash()

	exec.metric.ObserveSince("create_block_ms", start)
	exec.metric.Counter("reaped_txs").Inc(int64(len(txs)))
	exec.logger.Info("Created block", "height", header.Height, "txs", len(included), "reaped", len(txs))
	return block, ordered, nil
}

// ApplyBlock implements BlockExecutor
func (exec *blockExecutor) ApplyBlock(
	ctx context.Context,
	state State,
	block *types.Block,
	sets types.ReturnSets,
) (State, error) {
	start := time.Now()
	// 首先验证区块是否合法，不合法直接返回原状态
	if err := exec.validateBlock(state, block); err != nil {
		return state, ErrInvalidBlock(err)
	}

	if sets == nil {
		executed, err := exec.executor.Execute(ctx, &block.Header, block.Txs, nil)
		if err != nil {
			return state, errors.Wrapf(err, "execute block %d", block.Height)
		}
		for _, set := range executed {
			if set.Status == types.TxResultCanceled {
				return state, errors.Wrapf(ErrBlockExecutionCanceled, "tx %v", set.TransactionID)
			}
		}
		if len(executed) != len(block.Txs) {
			return state, errors.Wrapf(ErrBlockExecutionCanceled, "executed %d of %d txs", len(executed), len(block.Txs))
		}
		sets = executed
	}

	// 交易结果在执行时已经写入，这里只提交状态和区块
	if err := exec.db.CommitBlock(block, sets, nil); err != nil {
		return state, errors.Wrapf(err, "commit block %d", block.Height)
	}

	// 提交成功后更新mempool，首先加锁
	exec.mempool.Lock()
	err := exec.mempool.Update(block.Height, block.Txs)
	exec.mempool.Unlock()
	if err != nil {
		return state, errors.Wrap(err, "update mempool")
	}

	newState := state.Copy()
	newState.LastBlockHeight = block.Height
	newState.LastBlockHash = block.Hash()
	newState.LastBlockTime = block.Time
	newState.LastResultsHash = sets.Hash()
	if err := SaveState(exec.db, newState); err != nil {
		return state, errors.Wrap(err, "save state")
	}

	exec.metric.ObserveSince("apply_block_ms", start)
	exec.metric.Counter("applied_blocks").Inc(1)
	exec.metric.Counter("applied_txs").Inc(int64(len(block.Txs)))
	exec.metric.Gauge("height").Update(block.Height)
	exec.logger.Info("Applied block", "height", block.Height, "txs", len(block.Txs), "hash", newState.LastBlockHash)
	return newState, nil
}

// 根据当前的state验证一个区块是否合法
func (exec *blockExecutor) validateBlock(state State, block *types.Block) error {
	// 先检验区块基本的信息是否正确
	if err := block.ValidateBasic(); err != nil {
		return err
	}
	if block.ChainID != state.ChainID {
		return errors.Errorf("wrong chain id: expected %v, got %v", state.ChainID, block.ChainID)
	}
	if block.Height != state.LastBlockHeight+1 {
		return ErrUnexpectedHeight{Expected: state.LastBlockHeight + 1, Got: block.Height}
	}
	if !bytes.Equal(block.PreviousBlockHash, state.LastBlockHash) {
		return errors.Errorf("wrong previous block hash: expected %v, got %v", state.LastBlockHash, block.PreviousBlockHash)
	}
	return nil
}
