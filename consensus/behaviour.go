package consensus

import (
	"math"
	"time"

	cstypes "dpos_demo/consensus/types"
)

// GetBehaviour 根据当前时间判断出块者应该执行的共识动作
func GetBehaviour(
	pubKey string,
	now time.Time,
	round, previous *cstypes.Round,
	blockchainStart time.Time,
	daysEachTerm int64,
) cstypes.Behaviour {
	if round.IsEmpty() {
		return cstypes.BehaviourInvalid
	}

	passed, miner := round.IsTimeSlotPassed(pubKey, now)
	if !passed && (miner == nil || len(miner.OutValue) == 0) {
		if miner == nil {
			return cstypes.BehaviourInvalid
		}
		if round.RoundNumber == 1 {
			return cstypes.BehaviourUpdateValueWithoutPreviousInValue
		}
		return cstypes.BehaviourUpdateValue
	}

	if round.RoundNumber == 1 {
		return cstypes.BehaviourNextRound
	}
	if round.IsTimeToChangeTerm(previous, blockchainStart, round.TermNumber, daysEachTerm) {
		return cstypes.BehaviourNextTerm
	}
	return cstypes.BehaviourNextRound
}

// GetConsensusCommand 计算距离出块还有多久以及出块时限
func GetConsensusCommand(
	behaviour cstypes.Behaviour,
	round *cstypes.Round,
	pubKey string,
	now time.Time,
	miningInterval int64,
) cstypes.ConsensusCommand {
	if behaviour == cstypes.BehaviourInvalid || round.IsEmpty() {
		return cstypes.InvalidCommand()
	}
	miner, ok := round.Miner(pubKey)
	if !ok {
		return cstypes.InvalidCommand()
	}

	if miningInterval == 0 {
		miningInterval = round.GetMiningInterval()
	}
	promised := int64(miner.PromisedTinyBlocks)
	if promised <= 0 {
		promised = 1
	}

	var target time.Time
	if behaviour.IsUpdateValue() {
		target = miner.ExpectedMiningTime
	} else {
		target = round.ArrangeAbnormalMiningTime(pubKey, now, miningInterval)
	}

	return cstypes.ConsensusCommand{
		CountingMilliseconds: clampInt32(target.Sub(now).Milliseconds()),
		TimeoutMilliseconds:  clampInt32(miningInterval / promised),
		Behaviour:            behaviour,
	}
}

func clampInt32(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}
