package consensus

import (
	"bytes"
	"math/rand"
	"sort"
	"time"

	"github.com/pkg/errors"

	cstypes "dpos_demo/consensus/types"
	"dpos_demo/types"
)

// GetVictories 得票最多的n个候选人，票数相同按公钥排序
// 有票的候选人不足n个时返回false
func GetVictories(tickets []*cstypes.Tickets, n int) ([]string, bool) {
	if n <= 0 {
		return nil, false
	}
	voted := make([]*cstypes.Tickets, 0, len(tickets))
	for _, t := range tickets {
		if t != nil && t.ObtainedTickets > 0 {
			voted = append(voted, t)
		}
	}
	if len(voted) < n {
		return nil, false
	}

	sort.Slice(voted, func(i, j int) bool {
		if voted[i].ObtainedTickets != voted[j].ObtainedTickets {
			return voted[i].ObtainedTickets > voted[j].ObtainedTickets
		}
		return voted[i].PublicKey < voted[j].PublicKey
	})

	victories := make([]string, n)
	for i := 0; i < n; i++ {
		victories[i] = voted[i].PublicKey
	}
	return victories, true
}

// GenerateFirstRoundOfNewTerm 新term的第一轮，额外出块者和第一轮的签名都是随机的
func GenerateFirstRoundOfNewTerm(
	miners *cstypes.Miners,
	miningInterval int64,
	now time.Time,
	roundNumber, termNumber uint64,
	rng *rand.Rand,
) *cstypes.Round {
	keys := make([]string, len(miners.PublicKeys))
	copy(keys, miners.PublicKeys)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] > keys[j][0]
		}
		return keys[i] < keys[j]
	})

	round := cstypes.NewRound(roundNumber, termNumber)
	if len(keys) == 0 {
		return round
	}

	ebp := rng.Intn(len(keys))
	for i, key := range keys {
		sig := make([]byte, 32)
		rng.Read(sig)
		round.Miners[key] = &cstypes.MinerInRound{
			PublicKey:            key,
			Order:                i + 1,
			ExpectedMiningTime:   now.Add(time.Duration(int64(i+1)*miningInterval) * time.Millisecond),
			Signature:            types.HashOf(sig),
			PromisedTinyBlocks:   1,
			IsExtraBlockProducer: i == ebp,
		}
	}
	return round
}

// CountMissedTimeSlots 本轮没有公布OutValue的出块者记一次错过
func CountMissedTimeSlots(round *cstypes.Round) {
	for _, m := range round.Miners {
		if len(m.OutValue) == 0 {
			m.MissedTimeSlots++
		}
	}
}

// SnapshotForMiners 将上一个term最后一轮的统计合并到历史记录中
// previousMiners是previousTerm之前一个term的出块者，用于计算连任次数
func SnapshotForMiners(
	lastRound *cstypes.Round,
	previousTerm uint64,
	histories map[string]*cstypes.CandidateInHistory,
	previousMiners *cstypes.Miners,
) (map[string]*cstypes.CandidateInHistory, error) {
	updated := make(map[string]*cstypes.CandidateInHistory, lastRound.MinersCount())
	for _, key := range lastRound.SortedKeys() {
		m := lastRound.Miners[key]

		h := histories[key].Copy()
		if h == nil {
			h = &cstypes.CandidateInHistory{PublicKey: key}
		}
		if h.HasTerm(previousTerm) {
			return nil, errors.Wrapf(ErrSnapshotTaken, "miner %v term %d", key, previousTerm)
		}

		h.ProducedBlocks += m.ProducedBlocks
		h.MissedTimeSlots += m.MissedTimeSlots
		h.Terms = append(h.Terms, previousTerm)
		if previousMiners != nil && previousMiners.Contains(key) {
			h.ContinualAppointmentCount++
		} else {
			h.ContinualAppointmentCount = 0
		}
		h.ReappointmentCount++
		updated[key] = h
	}
	return updated, nil
}

// GetEvilMiners 公布的PreviousInValue与上一轮的OutValue对不上的出块者
func GetEvilMiners(current, previous *cstypes.Round) []string {
	var evil []string
	if previous.IsEmpty() {
		return evil
	}
	for _, key := range current.SortedKeys() {
		m := current.Miners[key]
		if len(m.PreviousInValue) == 0 {
			continue
		}
		pm, ok := previous.Miners[key]
		if !ok || len(pm.OutValue) == 0 {
			continue
		}
		if !bytes.Equal(types.HashOf(m.PreviousInValue), pm.OutValue) {
			evil = append(evil, key)
		}
	}
	return evil
}

// nextAvailableMiner 优先选择得票最多且不是初始出块者的候选人，否则选择不在本轮的初始出块者
func nextAvailableMiner(round, firstRound *cstypes.Round, tickets []*cstypes.Tickets) string {
	sorted := make([]*cstypes.Tickets, 0, len(tickets))
	for _, t := range tickets {
		if t != nil {
			sorted = append(sorted, t)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ObtainedTickets != sorted[j].ObtainedTickets {
			return sorted[i].ObtainedTickets > sorted[j].ObtainedTickets
		}
		return sorted[i].PublicKey < sorted[j].PublicKey
	})
	for _, t := range sorted {
		if firstRound.IsMiner(t.PublicKey) || round.IsMiner(t.PublicKey) {
			continue
		}
		return t.PublicKey
	}

	if firstRound.IsEmpty() {
		return ""
	}
	for _, key := range firstRound.SortedKeys() {
		if !round.IsMiner(key) {
			return key
		}
	}
	return ""
}
