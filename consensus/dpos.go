package consensus

import (
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	cstypes "dpos_demo/consensus/types"
	"dpos_demo/libs/metric"
	"dpos_demo/types"
)

const (
	// 默认每个term持续的天数
	DefaultDaysEachTerm = 7
)

// LIBListener 找到最新不可逆块时回调，offset为相对当前高度的块数
type LIBListener func(roundNumber uint64, offset int)

// Engine DPoS共识，对外提供出块时机、共识数据的生成、校验与执行
// 所有状态都在Store中，Engine本身只持有配置
type Engine struct {
	mtx sync.Mutex

	store  Store
	sharer *SecretSharer

	daysEachTerm int64
	minersCount  int // 0表示沿用初始出块者数量
	rng          *rand.Rand

	libListener LIBListener
	metric      *consensusMetric
	logger      log.Logger
}

type EngineOption func(*Engine)

func SetDaysEachTerm(days int64) EngineOption {
	return func(e *Engine) {
		e.daysEachTerm = days
	}
}

func SetMinersCount(n int) EngineOption {
	return func(e *Engine) {
		e.minersCount = n
	}
}

// SetRand 用于生成新term第一轮的随机签名和额外出块者
func SetRand(rng *rand.Rand) EngineOption {
	return func(e *Engine) {
		e.rng = rng
	}
}

func SetLIBListener(l LIBListener) EngineOption {
	return func(e *Engine) {
		e.libListener = l
	}
}

func NewEngine(store Store, options ...EngineOption) *Engine {
	e := &Engine{
		store:        store,
		sharer:       NewSecretSharer(),
		daysEachTerm: DefaultDaysEachTerm,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		metric:       newConsensusMetric(),
		logger:       log.NewNopLogger(),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

func (e *Engine) SetLogger(logger log.Logger) {
	e.logger = logger
	e.sharer.SetLogger(logger.With("module", "secret"))
}

// Metric 注册到MetricSet中
func (e *Engine) Metric() metric.MetricItem {
	return e.metric
}

//-----------------------------------------------------------------------------
// store helpers

func (e *Engine) currentRound() (*cstypes.Round, error) {
	roundNumber, err := e.store.GetCurrentRoundNumber()
	if err != nil {
		return nil, errors.Wrap(err, "get current round number")
	}
	round, err := e.store.GetRound(roundNumber)
	if err != nil {
		return nil, errors.Wrapf(err, "get round %d", roundNumber)
	}
	return round, nil
}

// previousRound 第1轮没有上一轮，返回nil
func (e *Engine) previousRound(current *cstypes.Round) (*cstypes.Round, error) {
	if current.RoundNumber <= 1 {
		return nil, nil
	}
	previous, err := e.store.GetRound(current.RoundNumber - 1)
	if err != nil {
		return nil, errors.Wrapf(err, "get round %d", current.RoundNumber-1)
	}
	return previous, nil
}

func (e *Engine) allTickets() ([]*cstypes.Tickets, error) {
	candidates, err := e.store.GetCandidates()
	if err != nil {
		return nil, err
	}
	tickets := make([]*cstypes.Tickets, 0, len(candidates))
	for _, c := range candidates {
		t, err := e.store.GetTickets(c)
		if errors.Cause(err) == cstypes.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func (e *Engine) victoriesCount() (int, error) {
	if e.minersCount > 0 {
		return e.minersCount, nil
	}
	initial, err := e.store.GetMiners(1)
	if err != nil {
		return 0, errors.Wrap(err, "get initial miners")
	}
	return initial.Count(), nil
}

// GetVictories 当前的选举结果
func (e *Engine) GetVictories() ([]string, bool, error) {
	n, err := e.victoriesCount()
	if err != nil {
		return nil, false, err
	}
	tickets, err := e.allTickets()
	if err != nil {
		return nil, false, err
	}
	victories, ok := GetVictories(tickets, n)
	return victories, ok, nil
}

//-----------------------------------------------------------------------------
// host interface

// InitialConsensus 写入第一轮
func (e *Engine) InitialConsensus(first *cstypes.Round) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if first == nil || first.RoundNumber != 1 || first.IsEmpty() {
		return ErrInvalidFirstRound
	}

	first = first.Copy()
	first.TermNumber = 1
	if err := e.store.AddRound(first); err != nil {
		return errors.Wrap(err, "add first round")
	}
	if err := e.store.SetCurrentTermNumber(1); err != nil {
		return err
	}
	if err := e.store.SetCurrentRoundNumber(1); err != nil {
		return err
	}
	if err := e.store.SetBlockchainAge(1); err != nil {
		return err
	}
	if err := e.store.SetTermFirstRound(1, 1); err != nil {
		return err
	}
	if err := e.store.SetBlockchainStartTimestamp(first.GetStartTime()); err != nil {
		return err
	}
	if err := e.store.SetMiners(first.ToMiners()); err != nil {
		return err
	}
	if err := e.store.SetMiningInterval(first.GetMiningInterval()); err != nil {
		return err
	}

	e.metric.MarkRound(first)
	e.logger.Info("Initial consensus", "miners", first.MinersCount(),
		"start", first.GetStartTime(), "interval", first.GetMiningInterval())
	return nil
}

// GetConsensusCommand pubKey在now时刻应该执行的动作和等待时间
func (e *Engine) GetConsensusCommand(pubKey string, now time.Time) (cstypes.ConsensusCommand, error) {
	current, err := e.currentRound()
	if err != nil {
		return cstypes.InvalidCommand(), err
	}
	previous, err := e.previousRound(current)
	if err != nil {
		return cstypes.InvalidCommand(), err
	}
	start, err := e.store.GetBlockchainStartTimestamp()
	if err != nil {
		return cstypes.InvalidCommand(), errors.Wrap(err, "blockchain start timestamp")
	}
	interval, err := e.store.GetMiningInterval()
	if err != nil {
		return cstypes.InvalidCommand(), errors.Wrap(err, "mining interval")
	}

	behaviour := GetBehaviour(pubKey, now, current, previous, start, e.daysEachTerm)
	cmd := GetConsensusCommand(behaviour, current, pubKey, now, interval)
	e.logger.Debug("Consensus command", "round", current.RoundNumber, "behaviour", behaviour,
		"counting", cmd.CountingMilliseconds, "timeout", cmd.TimeoutMilliseconds)
	return cmd, nil
}

// GetInformationToUpdateConsensus 生成随区块广播的共识数据，不修改Store
func (e *Engine) GetInformationToUpdateConsensus(
	trigger *cstypes.TriggerInformation,
	now time.Time,
) (*cstypes.ConsensusInformation, error) {
	if trigger == nil || trigger.PublicKey == "" {
		return nil, errors.Wrap(ErrInvalidTrigger, "empty public key")
	}
	pubKey := trigger.PublicKey

	current, err := e.currentRound()
	if err != nil {
		return nil, err
	}
	previous, err := e.previousRound(current)
	if err != nil {
		return nil, err
	}

	var round *cstypes.Round
	switch trigger.Behaviour {
	case cstypes.BehaviourUpdateValueWithoutPreviousInValue, cstypes.BehaviourUpdateValue:
		round, err = e.updateValueInformation(trigger, current, previous, now)
	case cstypes.BehaviourNextRound:
		round, err = e.nextRoundInformation(pubKey, current, previous, now)
	case cstypes.BehaviourNextTerm:
		round, err = e.nextTermInformation(pubKey, current, now)
	default:
		return nil, errors.Wrapf(ErrInvalidBehaviour, "%v", trigger.Behaviour)
	}
	if err != nil {
		return nil, err
	}

	return &cstypes.ConsensusInformation{
		SenderPublicKey: pubKey,
		Behaviour:       trigger.Behaviour,
		Round:           round,
	}, nil
}

func (e *Engine) updateValueInformation(
	trigger *cstypes.TriggerInformation,
	current, previous *cstypes.Round,
	now time.Time,
) (*cstypes.Round, error) {
	if types.HashIsEmpty(trigger.RandomHash) {
		return nil, errors.Wrap(ErrInvalidTrigger, "random hash should not be empty")
	}
	miner, ok := current.Miner(trigger.PublicKey)
	if !ok {
		return nil, errors.Wrapf(ErrNotMiner, "%v", trigger.PublicKey)
	}

	inValue := current.CalculateInValue(trigger.RandomHash)
	outValue := types.HashOf(inValue)
	signature := types.HashFromTwo(outValue, trigger.RandomHash)
	var previousInValue types.Hash

	// 刚换届时上一轮属于上一个term，不使用
	if !previous.IsEmpty() && previous.TermNumber == current.TermNumber {
		signature = previous.CalculateSignature(inValue)
		if !types.HashIsEmpty(trigger.PreviousRandomHash) {
			previousInValue = previous.CalculateInValue(trigger.PreviousRandomHash)
		}
	}

	current.ApplyNormalConsensusData(trigger.PublicKey, previousInValue, outValue, signature, now)
	miner.ProducedBlocks++
	e.sharer.ShareAndRecoverInValue(current, previous, inValue, trigger.PublicKey, trigger.Decrypter)
	return current, nil
}

func (e *Engine) nextRoundInformation(pubKey string, current, previous *cstypes.Round, now time.Time) (*cstypes.Round, error) {
	start, err := e.store.GetBlockchainStartTimestamp()
	if err != nil {
		return nil, errors.Wrap(err, "blockchain start timestamp")
	}

	if !previous.IsEmpty() {
		if err := e.replaceEvilMiners(current, previous); err != nil {
			return nil, err
		}
	}

	next, err := current.GenerateNextRoundInformation(now, start)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate next round information")
	}
	if m, ok := next.Miner(pubKey); ok {
		m.ProducedBlocks++
	}
	next.ExtraBlockProducerOfPreviousRound = pubKey
	return next, nil
}

// replaceEvilMiners 被替换的出块者把自己在本轮的位置交给候补，计数清零
func (e *Engine) replaceEvilMiners(current, previous *cstypes.Round) error {
	evil := GetEvilMiners(current, previous)
	if len(evil) == 0 {
		return nil
	}
	e.metric.MarkEvilMiners(len(evil))

	firstRound, err := e.store.GetRound(1)
	if err != nil {
		return errors.Wrap(err, "get first round")
	}
	tickets, err := e.allTickets()
	if err != nil {
		return errors.Wrap(err, "get tickets")
	}

	for _, key := range evil {
		lucky := nextAvailableMiner(current, firstRound, tickets)
		if lucky == "" {
			e.logger.Error("No available miner to replace evil miner", "evil", key)
			break
		}
		m := current.Miners[key]
		delete(current.Miners, key)
		m.PublicKey = lucky
		m.ProducedBlocks = 0
		m.MissedTimeSlots = 0
		current.Miners[lucky] = m
		e.logger.Info("Replace evil miner", "evil", key, "by", lucky)
	}
	return nil
}

func (e *Engine) nextTermInformation(pubKey string, current *cstypes.Round, now time.Time) (*cstypes.Round, error) {
	victories, ok, err := e.GetVictories()
	if err != nil {
		return nil, errors.Wrap(err, "get victories")
	}
	if !ok {
		victories = current.PublicKeys()
	}
	interval, err := e.store.GetMiningInterval()
	if err != nil {
		return nil, errors.Wrap(err, "mining interval")
	}

	miners := cstypes.ToMiners(victories, current.TermNumber+1)
	round := GenerateFirstRoundOfNewTerm(miners, interval, now, current.RoundNumber+1, current.TermNumber+1, e.rng)
	if m, ok := round.Miner(pubKey); ok {
		m.ProducedBlocks = 1
	}
	round.ExtraBlockProducerOfPreviousRound = pubKey
	return round, nil
}

// ValidateConsensusBeforeExecution 执行区块之前校验共识数据
func (e *Engine) ValidateConsensusBeforeExecution(info *cstypes.ConsensusInformation) cstypes.ValidationResult {
	current, err := e.currentRound()
	if err != nil {
		e.logger.Error("Failed to get current round", "err", err)
		return cstypes.ValidationFailed("Failed to get current round information.")
	}

	var victories []string
	if info != nil && info.Behaviour == cstypes.BehaviourNextTerm {
		v, ok, err := e.GetVictories()
		if err != nil {
			return cstypes.ValidationFailed("Failed to get victories.")
		}
		if ok {
			victories = v
		}
	}

	result := validateBeforeExecution(info, current, victories)
	if !result.Success {
		e.metric.MarkValidateFail()
		e.logger.Info("Consensus validation failed before execution", "msg", result.Message)
	}
	return result
}

// ValidateConsensusAfterExecution 执行之后Store中的当前轮次应与共识数据一致
func (e *Engine) ValidateConsensusAfterExecution(info *cstypes.ConsensusInformation) cstypes.ValidationResult {
	current, err := e.currentRound()
	if err != nil {
		e.logger.Error("Failed to get current round", "err", err)
		return cstypes.ValidationFailed("Failed to get current round information.")
	}
	result := validateAfterExecution(info, current)
	if !result.Success {
		e.metric.MarkValidateFail()
		e.logger.Info("Consensus validation failed after execution", "msg", result.Message)
	}
	return result
}

// ProcessConsensusInformation 将共识数据写入Store
func (e *Engine) ProcessConsensusInformation(info *cstypes.ConsensusInformation) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if info == nil || info.Round.IsEmpty() {
		return errors.Wrap(ErrInvalidTrigger, "empty consensus information")
	}

	var err error
	switch info.Behaviour {
	case cstypes.BehaviourUpdateValueWithoutPreviousInValue, cstypes.BehaviourUpdateValue:
		err = e.processUpdateValue(info)
	case cstypes.BehaviourNextRound:
		err = e.processNextRound(info)
	case cstypes.BehaviourNextTerm:
		err = e.processNextTerm(info)
	default:
		return errors.Wrapf(ErrInvalidBehaviour, "%v", info.Behaviour)
	}
	if err != nil {
		return err
	}

	e.metric.MarkBehaviour(info.Behaviour, info.SenderPublicKey)
	e.tryToFindLIB()
	return nil
}

func (e *Engine) processUpdateValue(info *cstypes.ConsensusInformation) error {
	current, err := e.currentRound()
	if err != nil {
		return err
	}
	roundID := current.RoundID()
	if info.Round.RoundID() != roundID {
		return errors.Wrapf(cstypes.ErrRoundIDNotMatched, "round %d", current.RoundNumber)
	}

	sender := info.SenderPublicKey
	stored, ok := current.Miner(sender)
	if !ok {
		return errors.Wrapf(ErrNotMiner, "%v", sender)
	}
	published := info.Round.Miners[sender]
	if published == nil {
		return errors.Wrapf(ErrNotMiner, "%v not in consensus information", sender)
	}

	stored.ActualMiningTime = published.ActualMiningTime
	stored.OutValue = types.CopyHash(published.OutValue)
	stored.Signature = types.CopyHash(published.Signature)
	stored.PreviousInValue = types.CopyHash(published.PreviousInValue)
	stored.EncryptedInValues = published.Copy().EncryptedInValues
	stored.ProducedBlocks++

	for key, m := range current.Miners {
		pm, ok := info.Round.Miners[key]
		if !ok {
			continue
		}
		// 冲突时其他人的顺序也可能被调整
		m.OrderOfNextRound = pm.OrderOfNextRound
		if key == sender {
			continue
		}
		for decryptor, share := range pm.DecryptedPreviousInValues {
			if m.DecryptedPreviousInValues == nil {
				m.DecryptedPreviousInValues = make(map[string][]byte)
			}
			if _, existed := m.DecryptedPreviousInValues[decryptor]; !existed {
				m.DecryptedPreviousInValues[decryptor] = append([]byte(nil), share...)
			}
		}
		if len(m.PreviousInValue) == 0 && len(pm.PreviousInValue) != 0 {
			m.PreviousInValue = types.CopyHash(pm.PreviousInValue)
		}
	}

	return e.store.UpdateRound(current, roundID)
}

func (e *Engine) processNextRound(info *cstypes.ConsensusInformation) error {
	current, err := e.currentRound()
	if err != nil {
		return err
	}
	next := info.Round.Copy()
	if next.RoundNumber != current.RoundNumber+1 {
		return errors.Errorf("incorrect next round number %d, current %d", next.RoundNumber, current.RoundNumber)
	}

	// 被替换掉的出块者记为作恶
	for _, key := range current.SortedKeys() {
		if next.IsMiner(key) {
			continue
		}
		m := current.Miners[key]
		h, err := e.history(key)
		if err != nil {
			return err
		}
		h.ProducedBlocks += m.ProducedBlocks
		h.MissedTimeSlots += m.MissedTimeSlots
		h.IsEvilNode = true
		if err := e.store.SetHistory(h); err != nil {
			return err
		}
	}

	if current.RoundNumber == 1 {
		if err := e.store.SetBlockchainStartTimestamp(next.GetStartTime()); err != nil {
			return err
		}
	}
	if err := e.store.AddRound(next); err != nil {
		return errors.Wrapf(err, "add round %d", next.RoundNumber)
	}
	if err := e.store.SetCurrentRoundNumber(next.RoundNumber); err != nil {
		return err
	}

	e.metric.MarkRound(next)
	e.logger.Info("Next round", "round", next.RoundNumber, "term", next.TermNumber,
		"ebp", info.SenderPublicKey)
	return nil
}

func (e *Engine) processNextTerm(info *cstypes.ConsensusInformation) error {
	current, err := e.currentRound()
	if err != nil {
		return err
	}
	round := info.Round.Copy()
	if round.TermNumber != current.TermNumber+1 || round.RoundNumber != current.RoundNumber+1 {
		return errors.Errorf("incorrect first round of next term: term %d round %d, current term %d round %d",
			round.TermNumber, round.RoundNumber, current.TermNumber, current.RoundNumber)
	}

	// 先算出快照，失败时不修改任何状态
	roundID := current.RoundID()
	CountMissedTimeSlots(current)

	previousTerm := current.TermNumber
	histories := make(map[string]*cstypes.CandidateInHistory, current.MinersCount())
	for _, key := range current.SortedKeys() {
		h, err := e.history(key)
		if err != nil {
			return err
		}
		histories[key] = h
	}
	var previousMiners *cstypes.Miners
	if previousTerm > 1 {
		previousMiners, err = e.store.GetMiners(previousTerm - 1)
		if err != nil && errors.Cause(err) != cstypes.ErrNotFound {
			return err
		}
	}
	snapshot, err := SnapshotForMiners(current, previousTerm, histories, previousMiners)
	if err != nil {
		return err
	}

	if err := e.store.UpdateRound(current, roundID); err != nil {
		return err
	}

	for _, m := range round.Miners {
		m.ProducedBlocks = 0
		m.MissedTimeSlots = 0
	}
	if m, ok := round.Miner(info.SenderPublicKey); ok {
		m.ProducedBlocks = 1
	}

	if err := e.store.SetCurrentTermNumber(round.TermNumber); err != nil {
		return err
	}
	if err := e.store.SetCurrentRoundNumber(round.RoundNumber); err != nil {
		return err
	}
	if err := e.store.SetMiners(round.ToMiners()); err != nil {
		return err
	}
	if err := e.store.SetTermFirstRound(round.TermNumber, round.RoundNumber); err != nil {
		return err
	}

	start, err := e.store.GetBlockchainStartTimestamp()
	if err != nil {
		return errors.Wrap(err, "blockchain start timestamp")
	}
	age := int64(round.GetStartTime().Sub(start).Hours()/24) + 1
	round.BlockchainAge = age
	if err := e.store.SetBlockchainAge(age); err != nil {
		return err
	}
	if err := e.store.AddRound(round); err != nil {
		return errors.Wrapf(err, "add round %d", round.RoundNumber)
	}

	for _, key := range current.SortedKeys() {
		if err := e.store.SetHistory(snapshot[key]); err != nil {
			return err
		}
	}

	e.metric.MarkRound(round)
	e.logger.Info("Next term", "term", round.TermNumber, "round", round.RoundNumber,
		"miners", round.MinersCount())
	return nil
}

func (e *Engine) history(pubKey string) (*cstypes.CandidateInHistory, error) {
	h, err := e.store.GetHistory(pubKey)
	if errors.Cause(err) == cstypes.ErrNotFound {
		return &cstypes.CandidateInHistory{PublicKey: pubKey}, nil
	}
	return h, err
}

// tryToFindLIB 找不到时跳过，下次再试
func (e *Engine) tryToFindLIB() {
	current, err := e.currentRound()
	if err != nil {
		e.logger.Error("Failed to get current round", "err", err)
		return
	}
	previous, err := e.previousRound(current)
	if err != nil {
		e.logger.Error("Failed to get previous round", "err", err)
		return
	}

	offset, found := CalculateLIB(current, previous)
	if !found {
		e.logger.Debug("LIB not found", "round", current.RoundNumber)
		return
	}
	e.metric.MarkLIBOffset(offset)
	if e.libListener != nil {
		e.libListener(current.RoundNumber, offset)
	}
}

//-----------------------------------------------------------------------------
// election

// AnnounceElection 成为候选人
func (e *Engine) AnnounceElection(pubKey string) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	candidates, err := e.store.GetCandidates()
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if c == pubKey {
			return errors.Wrapf(ErrCandidateExist, "%v", pubKey)
		}
	}
	return e.store.AddCandidate(pubKey)
}

// Vote 给候选人投票，票数累加
func (e *Engine) Vote(pubKey string, amount int64) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	if amount <= 0 {
		return ErrInvalidTicketsAmount
	}
	candidates, err := e.store.GetCandidates()
	if err != nil {
		return err
	}
	isCandidate := false
	for _, c := range candidates {
		if c == pubKey {
			isCandidate = true
			break
		}
	}
	if !isCandidate {
		return errors.Wrapf(ErrNotCandidate, "%v", pubKey)
	}

	tickets, err := e.store.GetTickets(pubKey)
	if errors.Cause(err) == cstypes.ErrNotFound {
		tickets, err = &cstypes.Tickets{PublicKey: pubKey}, nil
	}
	if err != nil {
		return err
	}
	tickets.ObtainedTickets += amount
	return e.store.SetTickets(tickets)
}
