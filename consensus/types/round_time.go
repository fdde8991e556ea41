package types

import (
	"time"
)

const (
	// 单个出块者时的出块间隔
	SingleMinerMiningInterval = 4000 // ms
)

// MaxTime 表示永远不会到达的时间
var MaxTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// GetMiningInterval 出块者少于两个时固定为4000ms，
// 否则为Order 1和Order 2两个时间槽的间隔
func (r *Round) GetMiningInterval() int64 {
	if r.MinersCount() < 2 {
		return SingleMinerMiningInterval
	}
	first, second := r.MinerWithOrder(1), r.MinerWithOrder(2)
	if first == nil || second == nil {
		return SingleMinerMiningInterval
	}
	distance := second.ExpectedMiningTime.Sub(first.ExpectedMiningTime).Milliseconds()
	if distance < 0 {
		return -distance
	}
	return distance
}

// TotalMilliseconds 一轮的总时长 = N*interval + interval，最后一个时间槽给额外出块者
func (r *Round) TotalMilliseconds(miningInterval int64) int64 {
	if miningInterval == 0 {
		miningInterval = r.GetMiningInterval()
	}
	return int64(r.MinersCount())*miningInterval + miningInterval
}

// GetStartTime Order为1的出块者的预期出块时间
func (r *Round) GetStartTime() time.Time {
	if m := r.MinerWithOrder(1); m != nil {
		return m.ExpectedMiningTime
	}
	return time.Time{}
}

// GetExpectedEndTime start + total + missedRounds*total
func (r *Round) GetExpectedEndTime(missedRoundsCount int64, miningInterval int64) time.Time {
	if miningInterval == 0 {
		miningInterval = r.GetMiningInterval()
	}
	total := r.TotalMilliseconds(miningInterval)
	return r.GetStartTime().Add(millis(total)).Add(millis(missedRoundsCount * total))
}

// GetExpectedMiningTime 不检查是否错过时间槽，不在本轮中则返回MaxTime
func (r *Round) GetExpectedMiningTime(pubKey string) time.Time {
	if m, ok := r.Miners[pubKey]; ok {
		return m.ExpectedMiningTime
	}
	return MaxTime
}

// IsTimeSlotPassed 预期出块时间再过半个interval即认为错过
func (r *Round) IsTimeSlotPassed(pubKey string, now time.Time) (bool, *MinerInRound) {
	m, ok := r.Miners[pubKey]
	if !ok {
		return false, nil
	}
	interval := r.GetMiningInterval()
	return m.ExpectedMiningTime.Add(millis(interval / 2)).Before(now), m
}

// GetExtraBlockMiningTime 最晚的预期出块时间 + interval
func (r *Round) GetExtraBlockMiningTime(miningInterval int64) time.Time {
	if miningInterval == 0 {
		miningInterval = r.GetMiningInterval()
	}
	var last time.Time
	for _, m := range r.Miners {
		if m.ExpectedMiningTime.After(last) {
			last = m.ExpectedMiningTime
		}
	}
	return last.Add(millis(miningInterval))
}

// ArrangeAbnormalMiningTime 为已经出过块或者错过时间槽的出块者安排一个
// 用于结束本轮的时间。还没到自己时间槽的出块者得到MaxTime
func (r *Round) ArrangeAbnormalMiningTime(pubKey string, now time.Time, miningInterval int64) time.Time {
	if miningInterval == 0 {
		miningInterval = r.GetMiningInterval()
	}

	passed, m := r.IsTimeSlotPassed(pubKey, now)
	if m == nil {
		return MaxTime
	}
	if !passed && len(m.OutValue) == 0 {
		return MaxTime
	}

	if ebp := r.ExtraBlockProducer(); ebp != nil && ebp.PublicKey == pubKey {
		if extra := r.GetExtraBlockMiningTime(miningInterval); extra.After(now) {
			return extra
		}
	}

	if miningInterval > 0 {
		sinceStart := now.Sub(r.GetStartTime()).Milliseconds()
		missedRounds := sinceStart / r.TotalMilliseconds(miningInterval)
		return r.GetExpectedEndTime(missedRounds, miningInterval).Add(millis(int64(m.Order) * miningInterval))
	}

	return MaxTime
}

// IsTimeToChangeTerm 上一轮公布过OutValue的出块者中，超过2/3的人在本轮出块时已经进入了下一个term周期
func (r *Round) IsTimeToChangeTerm(previous *Round, blockchainStart time.Time, termNumber uint64, daysEachTerm int64) bool {
	if daysEachTerm <= 0 {
		return false
	}
	minimum := MinimumCount(previous.MinersWithOutValue())
	approvals := 0
	for _, m := range r.Miners {
		if !m.HasMined() {
			continue
		}
		days := int64(m.ActualMiningTime.Sub(blockchainStart).Hours() / 24)
		if days/daysEachTerm != int64(termNumber)-1 {
			approvals++
		}
	}
	return approvals >= minimum
}
