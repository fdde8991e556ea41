package store

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	tmdb "github.com/tendermint/tm-db"

	cstypes "dpos_demo/consensus/types"
)

var (
	keyCurrentRound   = []byte("dpos/current_round")
	keyCurrentTerm    = []byte("dpos/current_term")
	keyStartTimestamp = []byte("dpos/start_timestamp")
	keyMiningInterval = []byte("dpos/mining_interval")
	keyBlockchainAge  = []byte("dpos/blockchain_age")
	keyCandidates     = []byte("dpos/candidates")
)

func roundKey(roundNumber uint64) []byte {
	return []byte(fmt.Sprintf("dpos/round/%020d", roundNumber))
}

func minersKey(termNumber uint64) []byte {
	return []byte(fmt.Sprintf("dpos/miners/%020d", termNumber))
}

func termFirstRoundKey(termNumber uint64) []byte {
	return []byte(fmt.Sprintf("dpos/term_first_round/%020d", termNumber))
}

func historyKey(pubKey string) []byte {
	return []byte("dpos/history/" + pubKey)
}

func ticketsKey(pubKey string) []byte {
	return []byte("dpos/tickets/" + pubKey)
}

// RoundStore 共识状态存储，round按轮次号保存在arena中，对外只提供拷贝
type RoundStore struct {
	mtx sync.RWMutex

	db    tmdb.DB
	arena map[uint64]*cstypes.Round
}

func NewRoundStore(db tmdb.DB) *RoundStore {
	return &RoundStore{
		db:    db,
		arena: make(map[uint64]*cstypes.Round),
	}
}

func (rs *RoundStore) GetRound(roundNumber uint64) (*cstypes.Round, error) {
	rs.mtx.RLock()
	round, ok := rs.arena[roundNumber]
	rs.mtx.RUnlock()
	if ok {
		return round.Copy(), nil
	}

	rs.mtx.Lock()
	defer rs.mtx.Unlock()
	round, err := rs.loadRound(roundNumber)
	if err != nil {
		return nil, err
	}
	rs.arena[roundNumber] = round
	return round.Copy(), nil
}

func (rs *RoundStore) loadRound(roundNumber uint64) (*cstypes.Round, error) {
	round := &cstypes.Round{}
	if err := rs.getJSON(roundKey(roundNumber), round); err != nil {
		return nil, errors.Wrapf(err, "round %d", roundNumber)
	}
	return round, nil
}

// AddRound 同一轮次重复添加时直接覆盖
func (rs *RoundStore) AddRound(round *cstypes.Round) error {
	rs.mtx.Lock()
	defer rs.mtx.Unlock()
	return rs.saveRound(round.Copy())
}

// UpdateRound expectedRoundID与当前保存的RoundID不一致时拒绝
func (rs *RoundStore) UpdateRound(round *cstypes.Round, expectedRoundID int64) error {
	rs.mtx.Lock()
	defer rs.mtx.Unlock()

	stored, ok := rs.arena[round.RoundNumber]
	if !ok {
		var err error
		if stored, err = rs.loadRound(round.RoundNumber); err != nil {
			return err
		}
	}
	if stored.RoundID() != expectedRoundID {
		return errors.Wrapf(cstypes.ErrRoundIDNotMatched, "round %d: expected %d, stored %d",
			round.RoundNumber, expectedRoundID, stored.RoundID())
	}
	return rs.saveRound(round.Copy())
}

func (rs *RoundStore) saveRound(round *cstypes.Round) error {
	if err := rs.setJSON(roundKey(round.RoundNumber), round); err != nil {
		return err
	}
	rs.arena[round.RoundNumber] = round
	return nil
}

func (rs *RoundStore) GetCurrentRoundNumber() (uint64, error) {
	return rs.getUint64(keyCurrentRound)
}

func (rs *RoundStore) SetCurrentRoundNumber(roundNumber uint64) error {
	return rs.setUint64(keyCurrentRound, roundNumber)
}

func (rs *RoundStore) GetCurrentTermNumber() (uint64, error) {
	return rs.getUint64(keyCurrentTerm)
}

func (rs *RoundStore) SetCurrentTermNumber(termNumber uint64) error {
	return rs.setUint64(keyCurrentTerm, termNumber)
}

func (rs *RoundStore) GetMiners(termNumber uint64) (*cstypes.Miners, error) {
	miners := &cstypes.Miners{}
	if err := rs.getJSON(minersKey(termNumber), miners); err != nil {
		return nil, errors.Wrapf(err, "miners of term %d", termNumber)
	}
	return miners, nil
}

func (rs *RoundStore) SetMiners(miners *cstypes.Miners) error {
	return rs.setJSON(minersKey(miners.TermNumber), miners)
}

func (rs *RoundStore) GetTermFirstRound(termNumber uint64) (uint64, error) {
	return rs.getUint64(termFirstRoundKey(termNumber))
}

func (rs *RoundStore) SetTermFirstRound(termNumber, roundNumber uint64) error {
	return rs.setUint64(termFirstRoundKey(termNumber), roundNumber)
}

func (rs *RoundStore) GetHistory(pubKey string) (*cstypes.CandidateInHistory, error) {
	h := &cstypes.CandidateInHistory{}
	if err := rs.getJSON(historyKey(pubKey), h); err != nil {
		return nil, errors.Wrapf(err, "history of %v", pubKey)
	}
	return h, nil
}

func (rs *RoundStore) SetHistory(history *cstypes.CandidateInHistory) error {
	return rs.setJSON(historyKey(history.PublicKey), history)
}

func (rs *RoundStore) GetCandidates() ([]string, error) {
	var candidates []string
	err := rs.getJSON(keyCandidates, &candidates)
	if errors.Cause(err) == cstypes.ErrNotFound {
		return []string{}, nil
	}
	return candidates, err
}

func (rs *RoundStore) AddCandidate(pubKey string) error {
	rs.mtx.Lock()
	defer rs.mtx.Unlock()

	candidates, err := rs.GetCandidates()
	if err != nil {
		return err
	}
	return rs.setJSON(keyCandidates, append(candidates, pubKey))
}

func (rs *RoundStore) GetTickets(pubKey string) (*cstypes.Tickets, error) {
	t := &cstypes.Tickets{}
	if err := rs.getJSON(ticketsKey(pubKey), t); err != nil {
		return nil, errors.Wrapf(err, "tickets of %v", pubKey)
	}
	return t, nil
}

func (rs *RoundStore) SetTickets(tickets *cstypes.Tickets) error {
	return rs.setJSON(ticketsKey(tickets.PublicKey), tickets)
}

func (rs *RoundStore) GetBlockchainStartTimestamp() (time.Time, error) {
	var ts time.Time
	if err := rs.getJSON(keyStartTimestamp, &ts); err != nil {
		return time.Time{}, errors.Wrap(err, "blockchain start timestamp")
	}
	return ts, nil
}

func (rs *RoundStore) SetBlockchainStartTimestamp(ts time.Time) error {
	return rs.setJSON(keyStartTimestamp, ts)
}

func (rs *RoundStore) GetMiningInterval() (int64, error) {
	v, err := rs.getUint64(keyMiningInterval)
	return int64(v), err
}

func (rs *RoundStore) SetMiningInterval(interval int64) error {
	return rs.setUint64(keyMiningInterval, uint64(interval))
}

func (rs *RoundStore) GetBlockchainAge() (int64, error) {
	v, err := rs.getUint64(keyBlockchainAge)
	return int64(v), err
}

func (rs *RoundStore) SetBlockchainAge(age int64) error {
	return rs.setUint64(keyBlockchainAge, uint64(age))
}

//-----------------------------------------------------------------------------
// codec

func (rs *RoundStore) getJSON(key []byte, v interface{}) error {
	bz, err := rs.db.Get(key)
	if err != nil {
		return err
	}
	if bz == nil {
		return errors.Wrapf(cstypes.ErrNotFound, "key %s", key)
	}
	return jsoniter.Unmarshal(bz, v)
}

func (rs *RoundStore) setJSON(key []byte, v interface{}) error {
	bz, err := jsoniter.Marshal(v)
	if err != nil {
		return err
	}
	return rs.db.Set(key, bz)
}

func (rs *RoundStore) getUint64(key []byte) (uint64, error) {
	bz, err := rs.db.Get(key)
	if err != nil {
		return 0, err
	}
	if bz == nil {
		return 0, errors.Wrapf(cstypes.ErrNotFound, "key %s", key)
	}
	return strconv.ParseUint(string(bz), 10, 64)
}

func (rs *RoundStore) setUint64(key []byte, v uint64) error {
	return rs.db.Set(key, []byte(strconv.FormatUint(v, 10)))
}
