package types

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrMissingSignature  = errors.New("cannot generate next round, missing signature")
	ErrOrderConflict     = errors.New("not enough free orders for next round")
	ErrRoundIDNotMatched = errors.New("round id not matched")
)
