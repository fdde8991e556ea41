package crypto

import (
	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/share"
)

const (
	// SecretSize 只支持32字节的秘密，拆成两个16字节的scalar，保证还原时不丢失信息
	SecretSize = 32
	halfSize   = SecretSize / 2
	scalarSize = 32

	// ShareSize 每个share由两个scalar组成
	ShareSize = 2 * scalarSize
)

var (
	ErrInvalidSecret    = errors.New("secret must be 32 bytes")
	ErrInvalidShare     = errors.New("invalid share")
	ErrNotEnoughShares  = errors.New("not enough shares to recover secret")
	ErrInvalidThreshold = errors.New("invalid threshold")
)

// EncodeSecret 将secret拆成n份，任意k份可以还原
// 第i份(从0开始)对应x = i+1
func EncodeSecret(secret []byte, k, n int) ([][]byte, error) {
	if len(secret) != SecretSize {
		return nil, ErrInvalidSecret
	}
	if k <= 0 || k > n {
		return nil, errors.Wrapf(ErrInvalidThreshold, "k=%d n=%d", k, n)
	}

	hi := suite.Scalar().SetBytes(secret[:halfSize])
	lo := suite.Scalar().SetBytes(secret[halfSize:])
	hiShares := share.NewPriPoly(suite, k, hi, suite.RandomStream()).Shares(n)
	loShares := share.NewPriPoly(suite, k, lo, suite.RandomStream()).Shares(n)

	shares := make([][]byte, n)
	for i := 0; i < n; i++ {
		bz := make([]byte, 0, ShareSize)
		bz = append(bz, ScalarToBytes(hiShares[i].V)...)
		bz = append(bz, ScalarToBytes(loShares[i].V)...)
		shares[i] = bz
	}
	return shares, nil
}

// DecodeSecret orders[i]是shares[i]的x坐标(从1开始)
func DecodeSecret(shares [][]byte, orders []int, k, n int) ([]byte, error) {
	if len(shares) != len(orders) {
		return nil, errors.Wrap(ErrInvalidShare, "shares and orders length mismatch")
	}
	if len(shares) < k {
		return nil, errors.Wrapf(ErrNotEnoughShares, "have %d, need %d", len(shares), k)
	}

	hiShares := make([]*share.PriShare, 0, len(shares))
	loShares := make([]*share.PriShare, 0, len(shares))
	for i, bz := range shares {
		if len(bz) != ShareSize {
			return nil, errors.Wrapf(ErrInvalidShare, "share %d has %d bytes", i, len(bz))
		}
		if orders[i] <= 0 || orders[i] > n {
			return nil, errors.Wrapf(ErrInvalidShare, "order %d out of range", orders[i])
		}
		hi, err := ScalarFromBytes(bz[:scalarSize])
		if err != nil {
			return nil, errors.Wrap(err, "decode share")
		}
		lo, err := ScalarFromBytes(bz[scalarSize:])
		if err != nil {
			return nil, errors.Wrap(err, "decode share")
		}
		hiShares = append(hiShares, &share.PriShare{I: orders[i] - 1, V: hi})
		loShares = append(loShares, &share.PriShare{I: orders[i] - 1, V: lo})
	}

	hi, err := share.RecoverSecret(suite, hiShares, k, n)
	if err != nil {
		return nil, errors.Wrap(err, "recover secret")
	}
	lo, err := share.RecoverSecret(suite, loShares, k, n)
	if err != nil {
		return nil, errors.Wrap(err, "recover secret")
	}

	secret := make([]byte, 0, SecretSize)
	secret = append(secret, halfOf(hi)...)
	secret = append(secret, halfOf(lo)...)
	return secret, nil
}

// ed25519的scalar是小端序，低16字节即原始数据
func halfOf(s kyber.Scalar) []byte {
	return ScalarToBytes(s)[:halfSize]
}
