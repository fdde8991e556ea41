package types

import (
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/crypto/merkle"

	types "dpos_demo/types"
)

// slotOf 将v映射到[1, n]，0保留为"未出块"
func slotOf(v uint64, n int) int {
	o := int(v % uint64(n))
	if o == 0 {
		return n
	}
	return o
}

func (r *Round) orderOfNextRoundClaimed(order int) bool {
	for _, m := range r.Miners {
		if m.OrderOfNextRound == order {
			return true
		}
	}
	return false
}

// ApplyNormalConsensusData 记录出块者本轮公布的数据，并根据签名计算其下一轮的Order
// 第1轮的签名在term开始时随机生成，不会被覆盖
func (r *Round) ApplyNormalConsensusData(pubKey string, previousInValue, outValue, signature types.Hash, ts time.Time) {
	miner, ok := r.Miners[pubKey]
	if !ok {
		return
	}

	miner.ActualMiningTime = ts
	miner.PreviousInValue = previousInValue
	miner.OutValue = outValue
	if r.RoundNumber != 1 {
		miner.Signature = signature
	} else {
		signature = miner.Signature
	}

	n := r.MinersCount()
	orderOfNextRound := slotOf(types.HashToUint64(signature), n)

	// 冲突时移动已经占用该位置的出块者，而不是新来的
	// TODO: 这里只是尽力而为，多个冲突同时存在时不保证最终的分配是最优的
	for _, key := range r.SortedKeys() {
		if key == pubKey {
			continue
		}
		other := r.Miners[key]
		if other.OrderOfNextRound != orderOfNextRound {
			continue
		}
		for i := other.Order + 1; i <= 2*n; i++ {
			candidate := slotOf(uint64(i), n)
			if !r.orderOfNextRoundClaimed(candidate) {
				other.OrderOfNextRound = candidate
				break
			}
		}
	}

	miner.OrderOfNextRound = orderOfNextRound
}

// GenerateNextRoundInformation 根据本轮各出块者的OrderOfNextRound生成下一轮
func (r *Round) GenerateNextRoundInformation(ts time.Time, blockchainStart time.Time) (*Round, error) {
	var mined, missed []*MinerInRound
	for _, m := range r.SortedMiners() {
		if m.OrderOfNextRound != 0 {
			if len(m.Signature) == 0 {
				return nil, errors.Wrapf(ErrMissingSignature, "miner %v", m.PublicKey)
			}
			mined = append(mined, m)
		} else {
			missed = append(missed, m)
		}
	}
	sort.SliceStable(mined, func(i, j int) bool {
		return mined[i].OrderOfNextRound < mined[j].OrderOfNextRound
	})

	interval := r.GetMiningInterval()
	next := NewRound(r.RoundNumber+1, r.TermNumber)
	// NOTE: start - ts，符号与直觉相反，保持原样
	next.BlockchainAge = int64(blockchainStart.Sub(ts).Hours() / 24)

	for _, m := range mined {
		order := m.OrderOfNextRound
		next.Miners[m.PublicKey] = &MinerInRound{
			PublicKey:          m.PublicKey,
			Order:              order,
			ExpectedMiningTime: ts.Add(millis(interval*int64(order) + interval)),
			PromisedTinyBlocks: 1,
			ProducedBlocks:     m.ProducedBlocks,
			MissedTimeSlots:    m.MissedTimeSlots,
		}
	}

	n := r.MinersCount()
	freeOrders := make([]int, 0, len(missed))
	for i := 1; i <= n; i++ {
		if !r.orderOfNextRoundClaimed(i) {
			freeOrders = append(freeOrders, i)
		}
	}
	if len(freeOrders) < len(missed) {
		return nil, errors.Wrapf(ErrOrderConflict, "round %v: %d free orders for %d missed miners",
			r.RoundNumber, len(freeOrders), len(missed))
	}
	for i, m := range missed {
		order := freeOrders[i]
		next.Miners[m.PublicKey] = &MinerInRound{
			PublicKey:          m.PublicKey,
			Order:              order,
			ExpectedMiningTime: ts.Add(millis(interval * int64(order))),
			PromisedTinyBlocks: 1,
			ProducedBlocks:     m.ProducedBlocks,
			MissedTimeSlots:    m.MissedTimeSlots + 1,
		}
	}

	ebp := next.MinerWithOrder(r.CalculateNextExtraBlockProducerOrder())
	if ebp == nil {
		ebp = next.MinerWithOrder(1)
	}
	if ebp != nil {
		ebp.IsExtraBlockProducer = true
	}

	return next, nil
}

// CalculateNextExtraBlockProducerOrder 由本轮第一个公布签名的出块者的签名决定
func (r *Round) CalculateNextExtraBlockProducerOrder() int {
	first := r.GetFirstPlaceMiner()
	if first == nil {
		return 1
	}
	return slotOf(types.HashToUint64(first.Signature), r.MinersCount())
}

// CalculateSignature hash(inValue, fold(sig))，未公布签名的出块者用其公钥的hash代替
func (r *Round) CalculateSignature(inValue types.Hash) types.Hash {
	acc := make(types.Hash, 32)
	for _, key := range r.SortedKeys() {
		sig := r.Miners[key].Signature
		if len(sig) == 0 {
			sig = types.HashFromString(key)
		}
		acc = types.HashFromTwo(acc, sig)
	}
	return types.HashFromTwo(inValue, acc)
}

// CalculateInValue 由随机数和本轮RoundID得到InValue
func (r *Round) CalculateInValue(randomHash types.Hash) types.Hash {
	return types.HashFromTwo(randomHash, types.HashFromInt64(r.RoundID()))
}

// Hash 用于执行后的一致性校验
func (r *Round) Hash(excludePreviousInValue bool) types.Hash {
	bzs := [][]byte{
		[]byte(strconv.FormatUint(r.RoundNumber, 10)),
		[]byte(strconv.FormatUint(r.TermNumber, 10)),
	}
	for _, key := range r.SortedKeys() {
		m := r.Miners[key]
		prevIn := m.PreviousInValue
		if excludePreviousInValue {
			prevIn = nil
		}
		bzs = append(bzs, types.HashOf(
			[]byte(m.PublicKey),
			[]byte(strconv.Itoa(m.Order)),
			[]byte(strconv.Itoa(m.OrderOfNextRound)),
			[]byte(strconv.FormatInt(m.ExpectedMiningTime.UnixNano(), 10)),
			[]byte(strconv.FormatInt(unixNanoOrZero(m.ActualMiningTime), 10)),
			m.OutValue,
			m.Signature,
			prevIn,
			[]byte(strconv.FormatInt(m.ProducedBlocks, 10)),
			[]byte(strconv.FormatInt(m.MissedTimeSlots, 10)),
			[]byte(strconv.FormatBool(m.IsExtraBlockProducer)),
		))
	}
	return merkle.HashFromByteSlices(bzs)
}

func unixNanoOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
