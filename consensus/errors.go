package consensus

import "errors"

var (
	ErrInvalidFirstRound    = errors.New("first round must be round 1 with at least one miner")
	ErrInvalidTrigger       = errors.New("invalid trigger information")
	ErrInvalidBehaviour     = errors.New("invalid behaviour")
	ErrNotMiner             = errors.New("not a miner of current round")
	ErrSnapshotTaken        = errors.New("snapshot of this term already taken")
	ErrCandidateExist       = errors.New("candidate already announced")
	ErrNotCandidate         = errors.New("not a candidate")
	ErrInvalidTicketsAmount = errors.New("tickets amount must be positive")
)
