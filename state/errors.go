package state

import (
	"errors"
	"fmt"
)

var (
	ErrBlockExecutionCanceled = errors.New("block execution canceled")
)

type ErrInvalidBlock error

// ErrUnexpectedHeight 区块高度不连续
type ErrUnexpectedHeight struct {
	Expected int64
	Got      int64
}

func (e ErrUnexpectedHeight) Error() string {
	return fmt.Sprintf("unexpected block height: expected %d, got %d", e.Expected, e.Got)
}
