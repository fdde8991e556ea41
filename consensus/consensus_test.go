package consensus

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tm-db/memdb"
	"go.dedis.ch/kyber/v3"

	cstypes "dpos_demo/consensus/types"
	"dpos_demo/crypto"
	"dpos_demo/store"
	"dpos_demo/types"
)

var testStart = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

const testInterval = 4000

type testMiner struct {
	priv   kyber.Scalar
	pubKey string
}

func (tm *testMiner) Decrypt(ciphertext []byte) ([]byte, error) {
	return crypto.Decrypt(tm.priv, ciphertext)
}

// 按公钥排序，方便按key找到miner
func newTestMiners(n int) map[string]*testMiner {
	miners := make(map[string]*testMiner, n)
	for i := 0; i < n; i++ {
		priv := crypto.GenPrivKey()
		pubKey := crypto.PointToHex(crypto.PubKey(priv))
		miners[pubKey] = &testMiner{priv: priv, pubKey: pubKey}
	}
	return miners
}

func minerKeys(miners map[string]*testMiner) []string {
	keys := make([]string, 0, len(miners))
	for k := range miners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// makeRound 按keys的顺序分配Order，最后一个为额外出块者
func makeRound(keys []string, start time.Time, roundNumber, termNumber uint64) *cstypes.Round {
	r := cstypes.NewRound(roundNumber, termNumber)
	for i, k := range keys {
		r.Miners[k] = &cstypes.MinerInRound{
			PublicKey:          k,
			Order:              i + 1,
			ExpectedMiningTime: start.Add(time.Duration(int64(i)*testInterval) * time.Millisecond),
			PromisedTinyBlocks: 1,
		}
	}
	r.Miners[keys[len(keys)-1]].IsExtraBlockProducer = true
	return r
}

type libRecord struct {
	round  uint64
	offset int
}

func newTestEngine(t *testing.T, keys []string, options ...EngineOption) (*Engine, *cstypes.Round, *[]libRecord) {
	libs := &[]libRecord{}
	options = append([]EngineOption{
		SetRand(rand.New(rand.NewSource(42))),
		SetLIBListener(func(round uint64, offset int) {
			*libs = append(*libs, libRecord{round, offset})
		}),
	}, options...)

	e := NewEngine(store.NewRoundStore(memdb.NewDB()), options...)
	e.SetLogger(log.NewFilter(log.TestingLogger(), log.AllowDebug()))

	first := GenerateFirstRoundOfNewTerm(cstypes.ToMiners(keys, 1), testInterval, testStart, 1, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, e.InitialConsensus(first))
	return e, first, libs
}

// mine 完整地走一遍出块流程：生成共识数据 -> 执行前校验 -> 执行 -> 执行后校验
func mine(t *testing.T, e *Engine, trigger *cstypes.TriggerInformation, now time.Time) *cstypes.ConsensusInformation {
	info, err := e.GetInformationToUpdateConsensus(trigger, now)
	require.NoError(t, err)

	// 经过一次序列化，和网络上收到的区块一致
	bz, err := info.Bytes()
	require.NoError(t, err)
	received, err := cstypes.ConsensusInformationFromBytes(bz)
	require.NoError(t, err)

	result := e.ValidateConsensusBeforeExecution(received)
	require.True(t, result.Success, "执行前校验失败: %v", result.Message)
	require.NoError(t, e.ProcessConsensusInformation(received))
	result = e.ValidateConsensusAfterExecution(received)
	require.True(t, result.Success, "执行后校验失败: %v", result.Message)
	return received
}

func randomOf(round uint64, pubKey string) types.Hash {
	return types.HashFromString(pubKey + string(rune('0'+round)))
}

func TestEngineRoundsAndTerm(t *testing.T) {
	miners := newTestMiners(3)
	keys := minerKeys(miners)
	e, first, libs := newTestEngine(t, keys)

	// round 1: 每个出块者在自己的时间槽公布OutValue
	for _, m := range first.SortedMiners() {
		now := m.ExpectedMiningTime
		cmd, err := e.GetConsensusCommand(m.PublicKey, now)
		require.NoError(t, err)
		assert.Equal(t, cstypes.BehaviourUpdateValueWithoutPreviousInValue, cmd.Behaviour)
		assert.EqualValues(t, 0, cmd.CountingMilliseconds)
		assert.EqualValues(t, testInterval, cmd.TimeoutMilliseconds)

		mine(t, e, &cstypes.TriggerInformation{
			PublicKey:  m.PublicKey,
			Behaviour:  cmd.Behaviour,
			RandomHash: randomOf(1, m.PublicKey),
			Decrypter:  miners[m.PublicKey],
		}, now)
	}
	assert.Equal(t, []libRecord{{1, 3}}, *libs, "第1轮三个人都出块后找到LIB")

	round1, err := e.currentRound()
	require.NoError(t, err)
	for _, m := range round1.Miners {
		assert.True(t, m.HasMined())
		assert.EqualValues(t, 1, m.ProducedBlocks)
		assert.Len(t, m.EncryptedInValues, 2, "share发给其他两个出块者")
	}

	// 额外出块者结束第1轮
	ebp := round1.ExtraBlockProducer()
	require.NotNil(t, ebp)
	now := round1.GetExtraBlockMiningTime(testInterval)
	cmd, err := e.GetConsensusCommand(ebp.PublicKey, now)
	require.NoError(t, err)
	assert.Equal(t, cstypes.BehaviourNextRound, cmd.Behaviour)

	mine(t, e, &cstypes.TriggerInformation{PublicKey: ebp.PublicKey, Behaviour: cmd.Behaviour}, now)

	round2, err := e.currentRound()
	require.NoError(t, err)
	assert.EqualValues(t, 2, round2.RoundNumber)
	assert.Equal(t, ebp.PublicKey, round2.ExtraBlockProducerOfPreviousRound)
	assert.EqualValues(t, 2, round2.Miners[ebp.PublicKey].ProducedBlocks)
	for _, m := range round1.Miners {
		assert.Equal(t, m.OrderOfNextRound, round2.Miners[m.PublicKey].Order)
	}
	start, err := e.store.GetBlockchainStartTimestamp()
	require.NoError(t, err)
	assert.True(t, round2.GetStartTime().Equal(start), "第1轮结束后重置链的开始时间")
	assert.Equal(t, libRecord{2, 3}, (*libs)[len(*libs)-1], "借用上一轮的OutValue")

	// round 2: 公布上一轮的InValue
	for _, m := range round2.SortedMiners() {
		now := m.ExpectedMiningTime
		cmd, err := e.GetConsensusCommand(m.PublicKey, now)
		require.NoError(t, err)
		assert.Equal(t, cstypes.BehaviourUpdateValue, cmd.Behaviour)

		mine(t, e, &cstypes.TriggerInformation{
			PublicKey:          m.PublicKey,
			Behaviour:          cmd.Behaviour,
			RandomHash:         randomOf(2, m.PublicKey),
			PreviousRandomHash: randomOf(1, m.PublicKey),
			Decrypter:          miners[m.PublicKey],
		}, now)
	}

	round2, err = e.currentRound()
	require.NoError(t, err)
	for key, m := range round2.Miners {
		assert.Equal(t, round1.Miners[key].OutValue, types.HashOf(m.PreviousInValue), "PreviousInValue与上一轮OutValue对应")
	}
	assert.Empty(t, GetEvilMiners(round2, round1))

	// 选举后进入下一个term
	for i, k := range keys {
		require.NoError(t, e.AnnounceElection(k))
		require.NoError(t, e.Vote(k, int64(10+i)))
	}
	sender := round2.ExtraBlockProducer().PublicKey
	now = round2.GetExtraBlockMiningTime(testInterval)
	info := mine(t, e, &cstypes.TriggerInformation{PublicKey: sender, Behaviour: cstypes.BehaviourNextTerm}, now)

	round3, err := e.currentRound()
	require.NoError(t, err)
	assert.EqualValues(t, 3, round3.RoundNumber)
	assert.EqualValues(t, 2, round3.TermNumber)
	assert.EqualValues(t, 1, round3.Miners[sender].ProducedBlocks)
	assert.Equal(t, info.Round.Hash(false), round3.Hash(false))

	term, _ := e.store.GetCurrentTermNumber()
	firstOfTerm, _ := e.store.GetTermFirstRound(2)
	assert.EqualValues(t, 2, term)
	assert.EqualValues(t, 3, firstOfTerm)

	for _, k := range keys {
		h, err := e.store.GetHistory(k)
		require.NoError(t, err)
		assert.True(t, h.HasTerm(1))
		assert.EqualValues(t, 1, h.ReappointmentCount)
		assert.EqualValues(t, 0, h.MissedTimeSlots)
		assert.EqualValues(t, round2.Miners[k].ProducedBlocks, h.ProducedBlocks)
	}
}

func TestEngineValidateBeforeExecutionFails(t *testing.T) {
	miners := newTestMiners(3)
	keys := minerKeys(miners)
	e, first, _ := newTestEngine(t, keys)

	m := first.SortedMiners()[0]
	info, err := e.GetInformationToUpdateConsensus(&cstypes.TriggerInformation{
		PublicKey:  m.PublicKey,
		Behaviour:  cstypes.BehaviourUpdateValueWithoutPreviousInValue,
		RandomHash: randomOf(1, m.PublicKey),
	}, m.ExpectedMiningTime)
	require.NoError(t, err)

	outsider := *info
	outsider.SenderPublicKey = "outsider"
	assert.Equal(t, "Sender is not a miner.", e.ValidateConsensusBeforeExecution(&outsider).Message)

	moved := *info
	moved.Round = info.Round.Copy()
	moved.Round.Miners[m.PublicKey].ExpectedMiningTime = m.ExpectedMiningTime.Add(time.Minute)
	assert.Equal(t, "Round Id not matched.", e.ValidateConsensusBeforeExecution(&moved).Message)

	invalid := *info
	invalid.Behaviour = cstypes.BehaviourInvalid
	assert.Equal(t, "Invalid behaviour.", e.ValidateConsensusBeforeExecution(&invalid).Message)

	// 执行之前store中的轮次与共识数据不一致
	assert.False(t, e.ValidateConsensusAfterExecution(info).Success)
}

func TestEngineInvalidInput(t *testing.T) {
	e := NewEngine(store.NewRoundStore(memdb.NewDB()))
	assert.Equal(t, ErrInvalidFirstRound, e.InitialConsensus(cstypes.NewRound(1, 1)))
	assert.Equal(t, ErrInvalidFirstRound, e.InitialConsensus(makeRound([]string{"a"}, testStart, 2, 1)))

	_, err := e.GetConsensusCommand("a", testStart)
	assert.Error(t, err, "没有初始化时找不到当前轮次")

	_, err = e.GetInformationToUpdateConsensus(&cstypes.TriggerInformation{}, testStart)
	assert.Error(t, err)
}

func TestEngineElection(t *testing.T) {
	keys := minerKeys(newTestMiners(2))
	e, _, _ := newTestEngine(t, keys)

	assert.Error(t, e.Vote("nobody", 1))
	require.NoError(t, e.AnnounceElection("x"))
	assert.Error(t, e.AnnounceElection("x"), "重复参选")
	assert.Equal(t, ErrInvalidTicketsAmount, e.Vote("x", 0))
	require.NoError(t, e.Vote("x", 5))
	require.NoError(t, e.Vote("x", 5))

	_, ok, err := e.GetVictories()
	require.NoError(t, err)
	assert.False(t, ok, "有票的候选人不足2个")

	require.NoError(t, e.AnnounceElection("y"))
	require.NoError(t, e.Vote("y", 20))
	victories, ok, err := e.GetVictories()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"y", "x"}, victories)
}
