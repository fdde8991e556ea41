package state

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"dpos_demo/types"
)

var (
	ErrExecutivePanic = errors.New("executive panic")
)

// TransactionResultSink 保存交易结果，store.KVStore实现
type TransactionResultSink interface {
	AddTransactionResult(result *types.TransactionResult) error
}

// TraceListener 每执行完一个交易(包括inline/pre/post)都会收到trace
type TraceListener func(trace *types.TransactionTrace)

type ExecutingServiceOption func(s *TransactionExecutingService)

func SetPrePlugins(plugins ...PreExecutionPlugin) ExecutingServiceOption {
	return func(s *TransactionExecutingService) {
		s.prePlugins = uniquePrePlugins(plugins)
	}
}

func SetPostPlugins(plugins ...PostExecutionPlugin) ExecutingServiceOption {
	return func(s *TransactionExecutingService) {
		s.postPlugins = uniquePostPlugins(plugins)
	}
}

func SetResultSink(sink TransactionResultSink) ExecutingServiceOption {
	return func(s *TransactionExecutingService) {
		s.resultSink = sink
	}
}

func SetTraceListener(listener TraceListener) ExecutingServiceOption {
	return func(s *TransactionExecutingService) {
		s.traceListener = listener
	}
}

// TransactionExecutingService 在分层缓存上顺序执行一批交易
type TransactionExecutingService struct {
	executives  ExecutiveProvider
	reader      StateReader
	prePlugins  []PreExecutionPlugin
	postPlugins []PostExecutionPlugin

	resultSink    TransactionResultSink
	traceListener TraceListener

	logger log.Logger
}

func NewTransactionExecutingService(
	reader StateReader,
	executives ExecutiveProvider,
	options ...ExecutingServiceOption,
) *TransactionExecutingService {
	s := &TransactionExecutingService{
		executives: executives,
		reader:     reader,
		logger:     log.NewNopLogger(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *TransactionExecutingService) SetLogger(logger log.Logger) {
	s.logger = logger
}

// Execute 按顺序执行交易，返回每个交易的ExecutionReturnSet
// ctx取消后不再执行后续交易，已经执行的结果保留
func (s *TransactionExecutingService) Execute(
	ctx context.Context,
	header *types.Header,
	txs types.Txs,
) ([]*types.ExecutionReturnSet, error) {
	return s.ExecuteOnPartialState(ctx, header, txs, nil)
}

// ExecuteOnPartialState 在partial(本区块已经执行过的交易的结果)之上执行
func (s *TransactionExecutingService) ExecuteOnPartialState(
	ctx context.Context,
	header *types.Header,
	txs types.Txs,
	partial types.ReturnSets,
) ([]*types.ExecutionReturnSet, error) {
	blockCache := NewTieredStateCache(NewStoreStateCache(s.reader))
	if len(partial) > 0 {
		blockCache.UpdateReturnSets(partial)
	}

	returnSets := make([]*types.ExecutionReturnSet, 0, len(txs))
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			s.logger.Debug("Execution canceled", "executed", len(returnSets), "total", len(txs))
			break
		}

		trace, err := s.executeOne(ctx, 0, blockCache, header, tx, "")
		if !trace.IsSuccessful() {
			if trace.IsCanceled() {
				s.addCanceled(trace, header, &returnSets)
				break
			}
			trace.SurfaceUpError()
		} else {
			blockCache.Update(trace.GetFlattenedWrites())
		}

		if trace.Error != "" {
			s.logger.Error("Transaction failed", "tx", trace.TransactionID, "status", trace.ExecutionStatus, "err", trace.Error)
		}

		result := transactionResult(trace, header.Height)
		if result == nil {
			continue
		}
		if s.resultSink != nil {
			if err := s.resultSink.AddTransactionResult(result); err != nil {
				return returnSets, errors.Wrap(err, "add transaction result")
			}
		}
		returnSets = append(returnSets, returnSet(trace, result))

		if err != nil {
			return returnSets, err
		}
	}
	return returnSets, nil
}

// 被取消的交易只记录状态，不提交任何写
func (s *TransactionExecutingService) addCanceled(trace *types.TransactionTrace, header *types.Header, sets *[]*types.ExecutionReturnSet) {
	s.logger.Debug("Transaction canceled", "tx", trace.TransactionID, "height", header.Height)
	*sets = append(*sets, types.NewExecutionReturnSet(trace.TransactionID, types.TxResultCanceled))
}

func (s *TransactionExecutingService) publish(trace *types.TransactionTrace) {
	if s.traceListener != nil {
		s.traceListener(trace)
	}
}

// executeOne 深度优先执行一个交易以及它的pre/inline/post交易
// executive发生panic时记为ContractError，并以error的形式向上传递
func (s *TransactionExecutingService) executeOne(
	ctx context.Context,
	depth int,
	cache StateCache,
	header *types.Header,
	tx *types.Transaction,
	origin types.Address,
) (trace *types.TransactionTrace, err error) {
	trace = types.NewTransactionTrace(tx.Hash())
	if ctx.Err() != nil {
		trace.ExecutionStatus = types.ExecutionCanceled
		trace.Error = "Execution cancelled"
		return trace, nil
	}

	if tx.From.IsEmpty() || tx.To.IsEmpty() {
		trace.ExecutionStatus = types.ExecutionContractError
		trace.Error = fmt.Sprintf("Invalid transaction: from=%q to=%q", tx.From, tx.To)
		return trace, nil
	}

	if origin.IsEmpty() {
		origin = tx.From
	}
	internal := NewTieredStateCache(cache)
	txCtx := &TransactionContext{
		PreviousBlockHash: types.Hash(header.PreviousBlockHash),
		CurrentBlockTime:  header.Time,
		BlockHeight:       header.Height,
		Transaction:       tx,
		Trace:             trace,
		CallDepth:         depth,
		Origin:            origin,
		StateCache:        internal,
	}

	executive, gerr := s.executives.GetExecutive(ctx, internal, tx.To)
	if gerr != nil {
		if errors.Cause(gerr) == ErrRegistrationNotFound {
			trace.ExecutionStatus = types.ExecutionContractError
			trace.Error += "Invalid contract address.\n"
		} else {
			trace.ExecutionStatus = types.ExecutionCanceled
			trace.Error += gerr.Error() + "\n"
		}
		return trace, nil
	}

	defer func() {
		if perr := s.executives.PutExecutive(tx.To, executive); perr != nil {
			s.logger.Error("Failed to put executive", "address", tx.To, "err", perr)
		}
		s.publish(trace)
	}()
	defer func() {
		if r := recover(); r != nil {
			trace.ExecutionStatus = types.ExecutionContractError
			trace.Error += fmt.Sprintf("%v\n", r)
			err = errors.Wrapf(ErrExecutivePanic, "%v", r)
		}
	}()

	if depth == 0 {
		ok, err := s.executePreStage(ctx, executive, txCtx, header, internal)
		if err != nil || !ok {
			return trace, err
		}
	}

	if aerr := executive.Apply(ctx, txCtx); aerr != nil {
		if ctx.Err() != nil {
			trace.ExecutionStatus = types.ExecutionCanceled
		} else {
			trace.ExecutionStatus = types.ExecutionContractError
		}
		trace.Error += aerr.Error() + "\n"
	} else if trace.ExecutionStatus == types.ExecutionUndefined {
		trace.ExecutionStatus = types.ExecutionExecuted
	}

	if err := s.executeInline(ctx, depth, txCtx, header, internal); err != nil {
		return trace, err
	}

	if depth == 0 {
		if ctx.Err() != nil {
			return trace, nil
		}
		if _, err := s.executePostStage(ctx, executive, txCtx, header, internal); err != nil {
			return trace, err
		}
	}
	return trace, nil
}

// 主调用成功后先把它的写合并到internal，再依次执行inline交易，遇到失败即停止
func (s *TransactionExecutingService) executeInline(
	ctx context.Context,
	depth int,
	txCtx *TransactionContext,
	header *types.Header,
	internal *TieredStateCache,
) error {
	trace := txCtx.Trace
	if !trace.IsSuccessful() || len(trace.InlineTransactions) == 0 {
		return nil
	}

	internal.Update(trace.GetFlattenedWrites())
	for _, inlineTx := range trace.InlineTransactions {
		inlineTrace, err := s.executeOne(ctx, depth+1, internal, header, inlineTx, txCtx.Origin)
		trace.InlineTraces = append(trace.InlineTraces, inlineTrace)
		if err != nil {
			return err
		}
		if !inlineTrace.IsSuccessful() {
			s.logger.Error("Inline transaction failed", "method", inlineTx.MethodName, "err", inlineTrace.Error)
			break
		}
		internal.Update(inlineTrace.GetFlattenedWrites())
	}
	return nil
}

func (s *TransactionExecutingService) executePreStage(
	ctx context.Context,
	executive Executive,
	txCtx *TransactionContext,
	header *types.Header,
	internal *TieredStateCache,
) (bool, error) {
	trace := txCtx.Trace
	for _, plugin := range s.prePlugins {
		txs, err := plugin.GetPreTransactions(executive.Descriptors(), txCtx)
		if err != nil {
			trace.ExecutionStatus = types.ExecutionPrefailed
			trace.Error += err.Error() + "\n"
			return false, nil
		}
		for _, preTx := range txs {
			preTrace, err := s.executeOne(ctx, 0, internal, header, preTx, "")
			trace.PreTransactions = append(trace.PreTransactions, preTx)
			trace.PreTraces = append(trace.PreTraces, preTrace)
			if err != nil {
				return false, err
			}
			if !preTrace.IsSuccessful() {
				trace.ExecutionStatus = types.ExecutionPrefailed
				preTrace.SurfaceUpError()
				trace.Error += preTrace.Error
				return false, nil
			}
			internal.Update(preTrace.GetFlattenedWrites())
		}
	}
	return true, nil
}

func (s *TransactionExecutingService) executePostStage(
	ctx context.Context,
	executive Executive,
	txCtx *TransactionContext,
	header *types.Header,
	internal *TieredStateCache,
) (bool, error) {
	trace := txCtx.Trace
	for _, plugin := range s.postPlugins {
		if ctx.Err() != nil {
			return false, nil
		}
		txs, err := plugin.GetPostTransactions(executive.Descriptors(), txCtx)
		if err != nil {
			trace.ExecutionStatus = types.ExecutionPostfailed
			trace.Error += err.Error() + "\n"
			return false, nil
		}
		for _, postTx := range txs {
			postTrace, err := s.executeOne(ctx, 0, internal, header, postTx, "")
			trace.PostTransactions = append(trace.PostTransactions, postTx)
			trace.PostTraces = append(trace.PostTraces, postTrace)
			if err != nil {
				return false, err
			}
			if !postTrace.IsSuccessful() {
				trace.ExecutionStatus = types.ExecutionPostfailed
				postTrace.SurfaceUpError()
				trace.Error += postTrace.Error
				return false, nil
			}
			internal.Update(postTrace.GetFlattenedWrites())
		}
	}
	return true, nil
}

// transactionResult Undefined状态的交易没有结果
func transactionResult(trace *types.TransactionTrace, height int64) *types.TransactionResult {
	switch {
	case trace.ExecutionStatus == types.ExecutionUndefined:
		return nil
	case trace.ExecutionStatus == types.ExecutionPrefailed:
		return &types.TransactionResult{
			TransactionID: trace.TransactionID,
			Status:        types.TxResultUnexecutable,
			Error:         trace.Error,
			BlockNumber:   height,
			Logs:          trace.PluginLogs(),
		}
	case trace.IsSuccessful():
		return &types.TransactionResult{
			TransactionID: trace.TransactionID,
			Status:        types.TxResultMined,
			ReturnValue:   trace.ReturnValue,
			BlockNumber:   height,
			Logs:          trace.FlattenedLogs(),
		}
	default:
		return &types.TransactionResult{
			TransactionID: trace.TransactionID,
			Status:        types.TxResultFailed,
			Error:         trace.Error,
			BlockNumber:   height,
			Logs:          trace.PluginLogs(),
		}
	}
}

// returnSet 失败的交易只记录读集合
func returnSet(trace *types.TransactionTrace, result *types.TransactionResult) *types.ExecutionReturnSet {
	set := types.NewExecutionReturnSet(result.TransactionID, result.Status)
	if trace.IsSuccessful() {
		for k, v := range trace.GetFlattenedWrites() {
			if v == nil {
				set.StateDeletes[k] = true
				continue
			}
			set.StateChanges[k] = v
		}
		set.ReturnValue = trace.ReturnValue
	}
	for k := range trace.GetFlattenedReads() {
		set.StateAccesses[k] = true
	}
	return set
}
