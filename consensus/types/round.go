package types

import (
	"sort"
	"time"

	types "dpos_demo/types"
)

// MinerInRound 某个出块者在一轮中的信息
type MinerInRound struct {
	PublicKey          string    `json:"public_key"`
	Order              int       `json:"order"`
	OrderOfNextRound   int       `json:"order_of_next_round"` // 0 表示本轮还未出块
	ExpectedMiningTime time.Time `json:"expected_mining_time"`
	ActualMiningTime   time.Time `json:"actual_mining_time"` // 零值表示未出块

	OutValue        types.Hash `json:"out_value"`
	InValue         types.Hash `json:"in_value"`
	PreviousInValue types.Hash `json:"previous_in_value"`
	Signature       types.Hash `json:"signature"`

	// 对方公钥 -> 加密/解密后的share
	EncryptedInValues         map[string][]byte `json:"encrypted_in_values"`
	DecryptedPreviousInValues map[string][]byte `json:"decrypted_previous_in_values"`

	ProducedBlocks       int64 `json:"produced_blocks"`
	MissedTimeSlots      int64 `json:"missed_time_slots"`
	PromisedTinyBlocks   int   `json:"promised_tiny_blocks"`
	IsExtraBlockProducer bool  `json:"is_extra_block_producer"`
}

func (m *MinerInRound) Copy() *MinerInRound {
	if m == nil {
		return nil
	}
	c := *m
	c.OutValue = types.CopyHash(m.OutValue)
	c.InValue = types.CopyHash(m.InValue)
	c.PreviousInValue = types.CopyHash(m.PreviousInValue)
	c.Signature = types.CopyHash(m.Signature)
	c.EncryptedInValues = copyBytesMap(m.EncryptedInValues)
	c.DecryptedPreviousInValues = copyBytesMap(m.DecryptedPreviousInValues)
	return &c
}

func (m *MinerInRound) HasMined() bool {
	return !m.ActualMiningTime.IsZero()
}

func copyBytesMap(src map[string][]byte) map[string][]byte {
	if src == nil {
		return nil
	}
	dst := make(map[string][]byte, len(src))
	for k, v := range src {
		bz := make([]byte, len(v))
		copy(bz, v)
		dst[k] = bz
	}
	return dst
}

// Round 一轮出块的完整信息，Miners以公钥hex为key
type Round struct {
	RoundNumber                       uint64                   `json:"round_number"`
	TermNumber                        uint64                   `json:"term_number"`
	BlockchainAge                     int64                    `json:"blockchain_age"` // days
	ExtraBlockProducerOfPreviousRound string                   `json:"extra_block_producer_of_previous_round"`
	Miners                            map[string]*MinerInRound `json:"real_time_miners_information"`
}

func NewRound(roundNumber, termNumber uint64) *Round {
	return &Round{
		RoundNumber: roundNumber,
		TermNumber:  termNumber,
		Miners:      make(map[string]*MinerInRound),
	}
}

// Copy 深拷贝，store对外只提供拷贝
func (r *Round) Copy() *Round {
	if r == nil {
		return nil
	}
	c := *r
	c.Miners = make(map[string]*MinerInRound, len(r.Miners))
	for k, m := range r.Miners {
		c.Miners[k] = m.Copy()
	}
	return &c
}

func (r *Round) IsEmpty() bool {
	return r == nil || len(r.Miners) == 0
}

func (r *Round) MinersCount() int {
	if r == nil {
		return 0
	}
	return len(r.Miners)
}

// RoundID 所有出块者预期出块时间(秒)之和，用于乐观并发校验
func (r *Round) RoundID() int64 {
	var id int64
	for _, m := range r.Miners {
		id += m.ExpectedMiningTime.Unix()
	}
	return id
}

func (r *Round) IsMiner(pubKey string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Miners[pubKey]
	return ok
}

func (r *Round) Miner(pubKey string) (*MinerInRound, bool) {
	if r == nil {
		return nil, false
	}
	m, ok := r.Miners[pubKey]
	return m, ok
}

// SortedKeys 按公钥排序
func (r *Round) SortedKeys() []string {
	keys := make([]string, 0, len(r.Miners))
	for k := range r.Miners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedMiners 按Order升序，Order相同时按公钥
func (r *Round) SortedMiners() []*MinerInRound {
	miners := make([]*MinerInRound, 0, len(r.Miners))
	for _, m := range r.Miners {
		miners = append(miners, m)
	}
	sort.Slice(miners, func(i, j int) bool {
		if miners[i].Order != miners[j].Order {
			return miners[i].Order < miners[j].Order
		}
		return miners[i].PublicKey < miners[j].PublicKey
	})
	return miners
}

func (r *Round) MinerWithOrder(order int) *MinerInRound {
	for _, m := range r.SortedMiners() {
		if m.Order == order {
			return m
		}
	}
	return nil
}

// ExtraBlockProducer 本轮的额外出块者，找不到时返回nil
func (r *Round) ExtraBlockProducer() *MinerInRound {
	for _, m := range r.SortedMiners() {
		if m.IsExtraBlockProducer {
			return m
		}
	}
	return nil
}

// GetFirstPlaceMiner 第一个已经公布签名的出块者
func (r *Round) GetFirstPlaceMiner() *MinerInRound {
	for _, m := range r.SortedMiners() {
		if len(m.Signature) != 0 {
			return m
		}
	}
	return nil
}

func (r *Round) GetMinedBlocks() int64 {
	var mined int64
	for _, m := range r.Miners {
		mined += m.ProducedBlocks
	}
	return mined
}

// MinersWithOutValue 本轮已经公布OutValue的出块者数量
func (r *Round) MinersWithOutValue() int {
	if r == nil {
		return 0
	}
	count := 0
	for _, m := range r.Miners {
		if len(m.OutValue) != 0 {
			count++
		}
	}
	return count
}

// PublicKeys 按Order排序后的公钥列表
func (r *Round) PublicKeys() []string {
	miners := r.SortedMiners()
	keys := make([]string, len(miners))
	for i, m := range miners {
		keys[i] = m.PublicKey
	}
	return keys
}

// ToMiners 当前轮次的出块者集合
func (r *Round) ToMiners() *Miners {
	return ToMiners(r.PublicKeys(), r.TermNumber)
}

// MinimumCount 2N/3 + 1
func MinimumCount(minersCount int) int {
	return minersCount*2/3 + 1
}
