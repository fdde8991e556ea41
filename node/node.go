package node

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/libs/service"
	tmdb "github.com/tendermint/tm-db"

	cfg "dpos_demo/config"
	"dpos_demo/consensus"
	cstypes "dpos_demo/consensus/types"
	"dpos_demo/libs/metric"
	"dpos_demo/mempool"
	"dpos_demo/privval"
	"dpos_demo/smallbank"
	"dpos_demo/state"
	"dpos_demo/store"
	"dpos_demo/types"
)

const (
	StateDBName     = "state"
	ConsensusDBName = "consensus"
)

type Provider func(*cfg.Config, log.Logger) (*Node, error)

// Node 单个出块节点：按共识给出的时间槽打包、执行并提交区块
type Node struct {
	service.BaseService

	// config
	config *cfg.Config
	genDoc *types.GenesisDoc

	minerKey *privval.FilePV

	// store
	kvStore   *store.KVStore
	roundDB   tmdb.DB
	roundStor *store.RoundStore

	// service
	engine     *consensus.Engine
	executives *state.ExecutiveService
	mempool    *mempool.ListMempool
	blockExec  state.BlockExecutor

	metricSet *metric.MetricSet
	metric    *metric.RegistryItem

	mtx   sync.RWMutex
	state state.State

	// 以下字段只在出块routine中访问
	previousRandomHash types.Hash
	libOffset          int // -1表示本次没有找到LIB

	now  func() time.Time
	quit chan struct{} // 停止出块routine，BaseService在OnStop之后才关闭Quit()
	wg   sync.WaitGroup
}

type Option func(*Node)

// SetClock 测试时替换出块使用的时间
func SetClock(now func() time.Time) Option {
	return func(n *Node) {
		n.now = now
	}
}

// DefaultNewNode 从配置文件指定的路径读取创世文件和出块者私钥
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return nil, err
	}
	minerKey := privval.LoadOrGenFilePV(config.MinerKeyFilePath())
	return NewNode(config, genDoc, minerKey, logger)
}

func openDBs(config *cfg.Config, logger log.Logger) (*store.KVStore, tmdb.DB, error) {
	stateDB, err := store.NewDB(StateDBName, config.DBBackend, config.DBDir())
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %v db", StateDBName)
	}
	roundDB, err := store.NewDB(ConsensusDBName, config.DBBackend, config.DBDir())
	if err != nil {
		stateDB.Close()
		return nil, nil, errors.Wrapf(err, "open %v db", ConsensusDBName)
	}
	return store.NewKVStoreWithDB(stateDB, logger.With("module", "store")), roundDB, nil
}

// ensureContract 新链上还没有部署smallbank时写入注册信息
func ensureContract(kv *store.KVStore) error {
	key, _, err := state.RegistrationKV(smallbank.Address, smallbank.NewRegistration())
	if err != nil {
		return err
	}
	_, ok, err := kv.Get(key)
	if err != nil || ok {
		return err
	}
	return smallbank.Deploy(kv)
}

func NewNode(
	config *cfg.Config,
	genDoc *types.GenesisDoc,
	minerKey *privval.FilePV,
	logger log.Logger,
	options ...Option,
) (*Node, error) {
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, errors.Wrap(err, "invalid genesis doc")
	}

	kvStore, roundDB, err := openDBs(config, logger)
	if err != nil {
		return nil, err
	}

	st, err := state.LoadStateFromDBOrGenesis(kvStore, genDoc)
	if err != nil {
		return nil, err
	}
	if err := ensureContract(kvStore); err != nil {
		return nil, errors.Wrap(err, "deploy smallbank")
	}

	node := &Node{
		config:    config,
		genDoc:    genDoc,
		minerKey:  minerKey,
		kvStore:   kvStore,
		roundDB:   roundDB,
		roundStor: store.NewRoundStore(roundDB),
		metricSet: metric.NewMetricSet(),
		metric:    metric.NewRegistryItem(),
		state:     st,
		libOffset: -1,
		now:       time.Now,
	}

	// consensus
	engineOptions := []consensus.EngineOption{
		consensus.SetDaysEachTerm(config.DPoS.DaysEachTerm),
		consensus.SetLIBListener(node.onLIBFound),
	}
	if config.DPoS.MinersCount > 0 {
		engineOptions = append(engineOptions, consensus.SetMinersCount(config.DPoS.MinersCount))
	}
	node.engine = consensus.NewEngine(node.roundStor, engineOptions...)
	node.engine.SetLogger(logger.With("module", "consensus"))

	// executor
	stateLogger := logger.With("module", "state")
	node.executives, err = state.NewExecutiveService(
		config.Executor,
		state.StateRegistrationProvider{},
		[]state.Runner{smallbank.Runner{}},
	)
	if err != nil {
		return nil, err
	}
	node.executives.SetLogger(stateLogger.With("service", "executive"))

	executing := state.NewTransactionExecutingService(
		kvStore,
		node.executives,
		state.SetPrePlugins(smallbank.FeePlugin{}),
		state.SetResultSink(kvStore),
	)
	executing.SetLogger(stateLogger)
	parallel := state.NewParallelExecutor(executing, smallbank.ResourceExtractor{}, config.Executor.ParallelWorkers)
	parallel.SetLogger(stateLogger)

	node.mempool = mempool.NewListMempool(
		config.Mempool,
		st.LastBlockHeight,
		mempool.SetPreCheck(mempool.PreCheckMaxBytes(config.Mempool.MaxTxBytes)),
	)
	node.mempool.SetLogger(logger.With("module", "mempool"))

	node.blockExec = state.NewBlockExecutor(
		kvStore,
		node.mempool,
		parallel,
		state.SetMaxTxsPerBlock(config.Mempool.MaxTxsPerBlock),
		state.SetExecutionTimeout(config.Executor.ExecutionTimeout),
	)
	node.blockExec.SetLogger(stateLogger)

	for label, item := range map[string]metric.MetricItem{
		"consensus": node.engine.Metric(),
		"mempool":   node.mempool.Metric(),
		"state":     node.blockExec.Metric(),
		"node":      node.metric,
	} {
		if err := node.metricSet.SetMetrics(label, item); err != nil {
			return nil, err
		}
	}

	node.BaseService = *service.NewBaseService(logger, "Node", node)
	for _, option := range options {
		option(node)
	}

	return node, nil
}

// initialConsensus 第一次启动时用创世出块者生成第一轮
func (n *Node) initialConsensus() error {
	if _, err := n.roundStor.GetCurrentRoundNumber(); err == nil {
		return nil
	} else if errors.Cause(err) != cstypes.ErrNotFound {
		return err
	}

	// 创世时间已经过去时从现在开始排时间槽
	start := n.genDoc.GenesisTime
	if now := n.now(); start.Before(now) {
		start = now
	}
	miners := cstypes.ToMiners(n.genDoc.MinerPubKeys(), 1)
	first := consensus.GenerateFirstRoundOfNewTerm(miners, n.genDoc.MiningInterval, start, 1, 1, rand.New(rand.NewSource(start.UnixNano())))
	return n.engine.InitialConsensus(first)
}

func (n *Node) OnStart() error {
	if err := n.initialConsensus(); err != nil {
		return errors.Wrap(err, "initial consensus")
	}
	if err := n.executives.Start(); err != nil {
		return err
	}

	n.Logger.Info("Starting miner", "pubKey", n.minerKey.GetPubKey(), "height", n.State().LastBlockHeight)
	n.quit = make(chan struct{})
	n.wg.Add(1)
	go n.miningRoutine()
	return nil
}

func (n *Node) OnStop() {
	close(n.quit)
	n.wg.Wait()

	if err := n.executives.Stop(); err != nil {
		n.Logger.Error("Error stopping executive service", "err", err)
	}
	if err := n.kvStore.Close(); err != nil {
		n.Logger.Error("Error closing state db", "err", err)
	}
	if err := n.roundDB.Close(); err != nil {
		n.Logger.Error("Error closing consensus db", "err", err)
	}
}

//-----------------------------------------------------------------------------
// mining

func (n *Node) miningRoutine() {
	defer n.wg.Done()

	pubKey := n.minerKey.GetPubKey()
	for {
		wait := n.config.DPoS.MaxWait
		cmd, err := n.engine.GetConsensusCommand(pubKey, n.now())
		if err != nil {
			// 缺少轮次或时间参数，无法继续出块
			n.Logger.Error("Failed to get consensus command, stop mining", "err", err)
			return
		}
		if cmd.Behaviour != cstypes.BehaviourInvalid {
			wait = time.Duration(cmd.CountingMilliseconds) * time.Millisecond
			if wait > n.config.DPoS.MaxWait {
				// 时间槽太远，过一会儿再问一次
				wait = n.config.DPoS.MaxWait
				cmd.Behaviour = cstypes.BehaviourInvalid
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-n.quit:
			timer.Stop()
			return
		case <-timer.C:
		}

		if cmd.Behaviour == cstypes.BehaviourInvalid {
			continue
		}
		timeout := time.Duration(cmd.TimeoutMilliseconds) * time.Millisecond
		if _, err := n.mineBlock(cmd.Behaviour, n.now(), timeout); err != nil {
			n.Logger.Error("Failed to mine block", "behaviour", cmd.Behaviour, "err", err)
		}
	}
}

// mineBlock 生成共识数据，打包交易，签名并提交
func (n *Node) mineBlock(behaviour cstypes.Behaviour, now time.Time, timeout time.Duration) (*types.Block, error) {
	start := time.Now()
	randomHash := types.HashOf(tmrand.Bytes(32))
	info, err := n.engine.GetInformationToUpdateConsensus(&cstypes.TriggerInformation{
		PublicKey:          n.minerKey.GetPubKey(),
		Behaviour:          behaviour,
		RandomHash:         randomHash,
		PreviousRandomHash: n.previousRandomHash,
		Decrypter:          n.minerKey,
	}, now)
	if err != nil {
		return nil, errors.Wrap(err, "consensus information")
	}
	extra, err := info.Bytes()
	if err != nil {
		return nil, err
	}

	st := n.State()
	header := st.NextHeader(now, n.minerKey.GetPubKey())
	header.ConsensusExtra = extra

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	block, sets, err := n.blockExec.CreateBlock(ctx, st, header)
	if err != nil {
		return nil, errors.Wrap(err, "create block")
	}
	if err := n.minerKey.SignBlock(block); err != nil {
		return nil, err
	}

	if err := n.commitBlock(block, sets); err != nil {
		return nil, err
	}
	// 只有上链之后才能作为下一轮的previous in value
	if behaviour.IsUpdateValue() {
		n.previousRandomHash = randomHash
	}

	n.metric.Counter("mined_blocks").Inc(1)
	n.metric.ObserveSince("mine_time", start)
	n.Logger.Info("Mined block", "height", block.Height, "behaviour", behaviour,
		"txs", len(block.Data.Txs), "hash", block.Hash())
	return block, nil
}

// commitBlock 共识校验、写入共识数据、执行交易，sets为nil时重新执行
func (n *Node) commitBlock(block *types.Block, sets types.ReturnSets) error {
	if err := privval.VerifyBlockSignature(block); err != nil {
		return errors.Wrap(err, "verify block signature")
	}
	info, err := cstypes.ConsensusInformationFromBytes(block.ConsensusExtra)
	if err != nil {
		return errors.Wrap(err, "decode consensus extra")
	}
	if info.SenderPublicKey != block.MinerPubKey {
		return fmt.Errorf("consensus sender %v is not block miner %v", info.SenderPublicKey, block.MinerPubKey)
	}

	if res := n.engine.ValidateConsensusBeforeExecution(info); !res.Success {
		return fmt.Errorf("consensus validation before execution: %v", res.Message)
	}

	// 先执行区块，执行失败时轮次信息还没有写入
	st := n.State()
	newState, err := n.blockExec.ApplyBlock(context.Background(), st, block, sets)
	if err != nil {
		return errors.Wrap(err, "apply block")
	}

	// LIB listener在这里回调，offset必须在更新LIB之前得到
	n.libOffset = -1
	if err := n.engine.ProcessConsensusInformation(info); err != nil {
		return errors.Wrap(err, "process consensus information")
	}

	if res := n.engine.ValidateConsensusAfterExecution(info); !res.Success {
		return fmt.Errorf("consensus validation after execution: %v", res.Message)
	}

	if n.libOffset >= 0 && newState.UpdateLIB(newState.LastBlockHeight-int64(n.libOffset)) {
		if err := state.SaveState(n.kvStore, newState); err != nil {
			return errors.Wrap(err, "save state")
		}
		n.metric.Gauge("lib_height").Update(newState.LIBHeight)
		n.Logger.Debug("LIB updated", "height", newState.LIBHeight)
	}

	n.mtx.Lock()
	n.state = newState
	n.mtx.Unlock()
	return nil
}

// onLIBFound 在ProcessConsensusInformation中回调
func (n *Node) onLIBFound(roundNumber uint64, offset int) {
	n.Logger.Debug("LIB found", "round", roundNumber, "offset", offset)
	n.libOffset = offset
}

//-----------------------------------------------------------------------------

// BroadcastTx 交易加入mempool，等待打包
func (n *Node) BroadcastTx(tx *types.Transaction) error {
	return n.mempool.CheckTx(tx)
}

// GetTransactionResult 查询已经执行的交易
func (n *Node) GetTransactionResult(txID types.Hash) (*types.TransactionResult, error) {
	return n.kvStore.GetTransactionResult(txID)
}

func (n *Node) State() state.State {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	return n.state.Copy()
}

func (n *Node) Mempool() mempool.Mempool {
	return n.mempool
}

func (n *Node) Engine() *consensus.Engine {
	return n.engine
}

func (n *Node) KVStore() *store.KVStore {
	return n.kvStore
}

func (n *Node) MetricSet() *metric.MetricSet {
	return n.metricSet
}
