package consensus

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	cstypes "dpos_demo/consensus/types"
)

func TestGetBehaviour(t *testing.T) {
	keys := []string{"a", "b", "c"}

	cases := []struct {
		name     string
		pubKey   string
		round    uint64
		now      time.Duration
		mined    bool
		expected cstypes.Behaviour
	}{
		{"第1轮未出块", "b", 1, 0, false, cstypes.BehaviourUpdateValueWithoutPreviousInValue},
		{"非第1轮未出块", "b", 2, 0, false, cstypes.BehaviourUpdateValue},
		{"不是出块者", "z", 2, 0, false, cstypes.BehaviourInvalid},
		{"第1轮已出块", "b", 1, time.Second, true, cstypes.BehaviourNextRound},
		{"第1轮错过时间槽", "a", 1, 10 * time.Second, false, cstypes.BehaviourNextRound},
		{"非第1轮错过时间槽", "a", 2, 10 * time.Second, false, cstypes.BehaviourNextRound},
	}

	for _, c := range cases {
		round := makeRound(keys, testStart, c.round, 1)
		if c.mined {
			round.Miners[c.pubKey].OutValue = []byte("out")
		}
		now := round.Miners["b"].ExpectedMiningTime.Add(c.now)
		if c.pubKey == "a" {
			now = round.Miners["a"].ExpectedMiningTime.Add(c.now)
		}
		actual := GetBehaviour(c.pubKey, now, round, nil, testStart, DefaultDaysEachTerm)
		assert.Equal(t, c.expected, actual, c.name)
	}

	assert.Equal(t, cstypes.BehaviourInvalid, GetBehaviour("a", testStart, nil, nil, testStart, 7), "没有当前轮次")
}

func TestGetBehaviourNextTerm(t *testing.T) {
	keys := []string{"a", "b", "c"}
	previous := makeRound(keys, testStart, 1, 1)
	for _, m := range previous.Miners {
		m.OutValue = []byte("out")
	}

	round := makeRound(keys, testStart.Add(48*time.Hour), 2, 1)
	now := round.Miners["c"].ExpectedMiningTime.Add(time.Minute)
	for _, m := range round.Miners {
		m.ActualMiningTime = m.ExpectedMiningTime
	}

	// 链开始于两天前，每个term一天
	assert.Equal(t, cstypes.BehaviourNextTerm, GetBehaviour("a", now, round, previous, testStart, 1))
	// 每个term七天，还在第一个term
	assert.Equal(t, cstypes.BehaviourNextRound, GetBehaviour("a", now, round, previous, testStart, 7))
}

func TestGetConsensusCommand(t *testing.T) {
	round := makeRound([]string{"a", "b", "c"}, testStart, 2, 1)

	// 还没到时间槽
	cmd := GetConsensusCommand(cstypes.BehaviourUpdateValue, round, "c", testStart, 0)
	assert.EqualValues(t, 2*testInterval, cmd.CountingMilliseconds)
	assert.EqualValues(t, testInterval, cmd.TimeoutMilliseconds)
	assert.Equal(t, cstypes.BehaviourUpdateValue, cmd.Behaviour)

	round.Miners["c"].PromisedTinyBlocks = 4
	cmd = GetConsensusCommand(cstypes.BehaviourUpdateValue, round, "c", testStart, 0)
	assert.EqualValues(t, testInterval/4, cmd.TimeoutMilliseconds)

	round.Miners["c"].PromisedTinyBlocks = 0
	cmd = GetConsensusCommand(cstypes.BehaviourUpdateValue, round, "c", testStart, 0)
	assert.EqualValues(t, testInterval, cmd.TimeoutMilliseconds, "0按1处理")

	// 额外出块者在额外时间槽结束本轮
	now := testStart.Add(11 * time.Second)
	cmd = GetConsensusCommand(cstypes.BehaviourNextRound, round, "c", now, 0)
	assert.EqualValues(t, 1000, cmd.CountingMilliseconds)

	invalid := GetConsensusCommand(cstypes.BehaviourInvalid, round, "c", now, 0)
	assert.Equal(t, cstypes.InvalidCommand(), invalid)
	assert.EqualValues(t, math.MaxInt32, invalid.CountingMilliseconds)

	assert.Equal(t, cstypes.InvalidCommand(), GetConsensusCommand(cstypes.BehaviourUpdateValue, round, "z", now, 0))
}

func TestClampInt32(t *testing.T) {
	assert.EqualValues(t, math.MaxInt32, clampInt32(math.MaxInt64))
	assert.EqualValues(t, math.MinInt32, clampInt32(math.MinInt64))
	assert.EqualValues(t, 12, clampInt32(12))
}
