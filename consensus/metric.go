package consensus

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	cstypes "dpos_demo/consensus/types"
)

func newConsensusMetric() *consensusMetric {
	return &consensusMetric{
		LastBehaviour: cstypes.BehaviourInvalid.String(),
		LIBOffset:     -1,
	}
}

type consensusMetric struct {
	mtx sync.RWMutex

	RoundNumber    uint64    `json:"current_round"`
	TermNumber     uint64    `json:"current_term"`
	RoundStartTime time.Time `json:"round_start_time"`

	LastBehaviour string `json:"last_behaviour"`
	LastSender    string `json:"last_sender"`
	LIBOffset     int    `json:"lib_offset"`

	EvilMiners    int64 `json:"evil_miners"`
	ValidateFails int64 `json:"validate_fails"`
}

func (cm *consensusMetric) JSONString() string {
	cm.mtx.RLock()
	defer cm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(cm)
	return s
}

func (cm *consensusMetric) MarkRound(round *cstypes.Round) {
	cm.mtx.Lock()
	cm.RoundNumber = round.RoundNumber
	cm.TermNumber = round.TermNumber
	cm.RoundStartTime = round.GetStartTime()
	cm.mtx.Unlock()
}

func (cm *consensusMetric) MarkBehaviour(b cstypes.Behaviour, sender string) {
	cm.mtx.Lock()
	cm.LastBehaviour = b.String()
	cm.LastSender = sender
	cm.mtx.Unlock()
}

func (cm *consensusMetric) MarkLIBOffset(offset int) {
	cm.mtx.Lock()
	cm.LIBOffset = offset
	cm.mtx.Unlock()
}

func (cm *consensusMetric) MarkEvilMiners(n int) {
	cm.mtx.Lock()
	cm.EvilMiners += int64(n)
	cm.mtx.Unlock()
}

func (cm *consensusMetric) MarkValidateFail() {
	cm.mtx.Lock()
	cm.ValidateFails++
	cm.mtx.Unlock()
}
