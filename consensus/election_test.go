package consensus

import (
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cstypes "dpos_demo/consensus/types"
	"dpos_demo/types"
)

func TestGetVictories(t *testing.T) {
	tickets := []*cstypes.Tickets{
		{PublicKey: "a", ObtainedTickets: 5},
		{PublicKey: "b", ObtainedTickets: 10},
		{PublicKey: "c", ObtainedTickets: 5},
		{PublicKey: "d", ObtainedTickets: 0},
		nil,
	}

	victories, ok := GetVictories(tickets, 3)
	assert.True(t, ok)
	assert.Equal(t, []string{"b", "a", "c"}, victories, "票数相同按公钥排序")

	_, ok = GetVictories(tickets, 4)
	assert.False(t, ok, "没有票的候选人不算")

	_, ok = GetVictories(tickets, 0)
	assert.False(t, ok)
}

func TestGenerateFirstRoundOfNewTerm(t *testing.T) {
	keys := []string{"1a", "0b", "1c", "0a"}
	round := GenerateFirstRoundOfNewTerm(cstypes.ToMiners(keys, 2), testInterval, testStart, 9, 2, rand.New(rand.NewSource(7)))

	assert.EqualValues(t, 9, round.RoundNumber)
	assert.EqualValues(t, 2, round.TermNumber)
	require.Equal(t, 4, round.MinersCount())

	// 首字符降序，其次公钥升序
	expected := []string{"1a", "1c", "0a", "0b"}
	ebp := 0
	for i, key := range expected {
		m := round.Miners[key]
		assert.Equal(t, i+1, m.Order, key)
		assert.True(t, testStart.Add(time.Duration(i+1)*testInterval*time.Millisecond).Equal(m.ExpectedMiningTime))
		assert.Len(t, m.Signature, 32)
		assert.EqualValues(t, 1, m.PromisedTinyBlocks)
		if m.IsExtraBlockProducer {
			ebp++
		}
	}
	assert.Equal(t, 1, ebp, "只有一个额外出块者")

	again := GenerateFirstRoundOfNewTerm(cstypes.ToMiners(keys, 2), testInterval, testStart, 9, 2, rand.New(rand.NewSource(7)))
	assert.Equal(t, round.Hash(false), again.Hash(false), "相同的随机源生成相同的轮次")

	empty := GenerateFirstRoundOfNewTerm(cstypes.ToMiners(nil, 2), testInterval, testStart, 9, 2, rand.New(rand.NewSource(7)))
	assert.True(t, empty.IsEmpty())
}

func TestCountMissedTimeSlots(t *testing.T) {
	round := makeRound([]string{"a", "b", "c"}, testStart, 3, 1)
	round.Miners["a"].OutValue = []byte("out")
	round.Miners["b"].MissedTimeSlots = 2

	CountMissedTimeSlots(round)
	assert.EqualValues(t, 0, round.Miners["a"].MissedTimeSlots)
	assert.EqualValues(t, 3, round.Miners["b"].MissedTimeSlots)
	assert.EqualValues(t, 1, round.Miners["c"].MissedTimeSlots)
}

func TestSnapshotForMiners(t *testing.T) {
	last := makeRound([]string{"a", "b"}, testStart, 10, 2)
	last.Miners["a"].ProducedBlocks = 4
	last.Miners["b"].ProducedBlocks = 2
	last.Miners["b"].MissedTimeSlots = 1

	histories := map[string]*cstypes.CandidateInHistory{
		"a": {PublicKey: "a", ProducedBlocks: 6, Terms: []uint64{1}, ContinualAppointmentCount: 0, ReappointmentCount: 1},
	}
	previousMiners := cstypes.ToMiners([]string{"a", "z"}, 1)

	updated, err := SnapshotForMiners(last, 2, histories, previousMiners)
	require.NoError(t, err)

	a := updated["a"]
	assert.EqualValues(t, 10, a.ProducedBlocks)
	assert.Equal(t, []uint64{1, 2}, a.Terms)
	assert.EqualValues(t, 1, a.ContinualAppointmentCount, "连任")
	assert.EqualValues(t, 2, a.ReappointmentCount)
	assert.Equal(t, []uint64{1}, histories["a"].Terms, "不修改传入的历史记录")

	b := updated["b"]
	assert.EqualValues(t, 2, b.ProducedBlocks)
	assert.EqualValues(t, 1, b.MissedTimeSlots)
	assert.EqualValues(t, 0, b.ContinualAppointmentCount)
	assert.EqualValues(t, 1, b.ReappointmentCount)

	_, err = SnapshotForMiners(last, 2, updated, previousMiners)
	assert.Equal(t, ErrSnapshotTaken, errors.Cause(err), "同一个term不能快照两次")
}

func TestGetEvilMiners(t *testing.T) {
	keys := []string{"a", "b", "c"}
	previous := makeRound(keys, testStart, 1, 1)
	current := makeRound(keys, testStart.Add(time.Minute), 2, 1)

	for _, k := range keys {
		previous.Miners[k].OutValue = types.HashOf([]byte("in-" + k))
	}
	current.Miners["a"].PreviousInValue = []byte("in-a")
	current.Miners["b"].PreviousInValue = []byte("wrong")

	assert.Equal(t, []string{"b"}, GetEvilMiners(current, previous))
	assert.Empty(t, GetEvilMiners(current, nil))
}

func TestNextAvailableMiner(t *testing.T) {
	first := makeRound([]string{"a", "b", "c"}, testStart, 1, 1)
	round := makeRound([]string{"a", "b", "x"}, testStart, 5, 1)

	tickets := []*cstypes.Tickets{
		{PublicKey: "a", ObtainedTickets: 100},
		{PublicKey: "x", ObtainedTickets: 50},
		{PublicKey: "y", ObtainedTickets: 10},
		{PublicKey: "z", ObtainedTickets: 10},
	}
	assert.Equal(t, "y", nextAvailableMiner(round, first, tickets), "初始出块者和本轮出块者都不选")

	assert.Equal(t, "c", nextAvailableMiner(round, first, tickets[:2]), "没有候选人时选择不在本轮的初始出块者")

	full := makeRound([]string{"a", "b", "c"}, testStart, 5, 1)
	assert.Equal(t, "", nextAvailableMiner(full, first, nil))
}
