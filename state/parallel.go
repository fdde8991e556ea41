package state

import (
	"context"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"dpos_demo/types"
)

// ResourceExtractor 给出交易可能访问的状态key，用于分组
// 返回空表示无法确定，这样的交易会被放到同一组
type ResourceExtractor interface {
	GetResources(tx *types.Transaction) []string
}

const unknownResource = "*"

// GroupTransactions 访问资源有交集的交易放在同一组，组内和组间都保持原有顺序
func GroupTransactions(txs types.Txs, extractor ResourceExtractor) []types.Txs {
	parent := make([]int, len(txs))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		// 保证根总是下标最小的交易
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	owner := make(map[string]int)
	for i, tx := range txs {
		var resources []string
		if extractor != nil {
			resources = extractor.GetResources(tx)
		}
		if len(resources) == 0 {
			resources = []string{unknownResource}
		}
		for _, r := range resources {
			if j, ok := owner[r]; ok {
				union(i, j)
			} else {
				owner[r] = i
			}
		}
	}

	index := make(map[int]int)
	var groups []types.Txs
	for i, tx := range txs {
		root := find(i)
		gi, ok := index[root]
		if !ok {
			gi = len(groups)
			index[root] = gi
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], tx)
	}
	return groups
}

// ParallelExecutor 每组交易使用独立的缓存并发执行，结果按组的顺序合并
type ParallelExecutor struct {
	service   *TransactionExecutingService
	extractor ResourceExtractor
	workers   int

	logger log.Logger
}

func NewParallelExecutor(service *TransactionExecutingService, extractor ResourceExtractor, workers int) *ParallelExecutor {
	if workers <= 0 {
		workers = 1
	}
	return &ParallelExecutor{
		service:   service,
		extractor: extractor,
		workers:   workers,
		logger:    log.NewNopLogger(),
	}
}

func (pe *ParallelExecutor) SetLogger(logger log.Logger) {
	pe.logger = logger
}

// Execute 返回的return set按组排列，与txs的顺序不一定相同
func (pe *ParallelExecutor) Execute(
	ctx context.Context,
	header *types.Header,
	txs types.Txs,
	partial types.ReturnSets,
) ([]*types.ExecutionReturnSet, error) {
	groups := GroupTransactions(txs, pe.extractor)
	if len(groups) <= 1 {
		return pe.service.ExecuteOnPartialState(ctx, header, txs, partial)
	}
	pe.logger.Debug("Execute in groups", "txs", len(txs), "groups", len(groups))

	var (
		mtx     sync.Mutex
		result  *multierror.Error
		results = make([][]*types.ExecutionReturnSet, len(groups))
	)

	wp := workerpool.New(pe.workers)
	for i, group := range groups {
		i, group := i, group
		wp.Submit(func() {
			sets, err := pe.service.ExecuteOnPartialState(ctx, header, group, partial)
			results[i] = sets
			if err != nil {
				mtx.Lock()
				result = multierror.Append(result, errors.Wrapf(err, "group %d", i))
				mtx.Unlock()
			}
		})
	}
	wp.StopWait()

	merged := make([]*types.ExecutionReturnSet, 0, len(txs))
	for _, sets := range results {
		merged = append(merged, sets...)
	}
	return merged, result.ErrorOrNil()
}
