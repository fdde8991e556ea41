package consensus

import (
	"time"

	cstypes "dpos_demo/consensus/types"
)

// Store 共识需要持久化的全部状态
// Round的读取都返回拷贝，更新必须带上读取时的RoundID
type Store interface {
	GetRound(roundNumber uint64) (*cstypes.Round, error)
	AddRound(round *cstypes.Round) error
	UpdateRound(round *cstypes.Round, expectedRoundID int64) error

	GetCurrentRoundNumber() (uint64, error)
	SetCurrentRoundNumber(roundNumber uint64) error
	GetCurrentTermNumber() (uint64, error)
	SetCurrentTermNumber(termNumber uint64) error

	GetMiners(termNumber uint64) (*cstypes.Miners, error)
	SetMiners(miners *cstypes.Miners) error
	GetTermFirstRound(termNumber uint64) (uint64, error)
	SetTermFirstRound(termNumber, roundNumber uint64) error

	GetHistory(pubKey string) (*cstypes.CandidateInHistory, error)
	SetHistory(history *cstypes.CandidateInHistory) error

	GetCandidates() ([]string, error)
	AddCandidate(pubKey string) error
	GetTickets(pubKey string) (*cstypes.Tickets, error)
	SetTickets(tickets *cstypes.Tickets) error

	GetBlockchainStartTimestamp() (time.Time, error)
	SetBlockchainStartTimestamp(ts time.Time) error
	GetMiningInterval() (int64, error)
	SetMiningInterval(interval int64) error
	GetBlockchainAge() (int64, error)
	SetBlockchainAge(age int64) error
}
