package consensus

import (
	"bytes"
	"sort"

	"github.com/tendermint/tendermint/libs/log"

	cstypes "dpos_demo/consensus/types"
	"dpos_demo/crypto"
	"dpos_demo/types"
)

// SecretSharer 出块者把自己的InValue拆分后加密发给其他出块者，
// 下一轮收集到足够多的share后还原别人上一轮的InValue
type SecretSharer struct {
	logger log.Logger
}

func NewSecretSharer() *SecretSharer {
	return &SecretSharer{logger: log.NewNopLogger()}
}

func (ss *SecretSharer) SetLogger(logger log.Logger) {
	ss.logger = logger
}

// ShareAndRecoverInValue 直接修改round，previous只读
func (ss *SecretSharer) ShareAndRecoverInValue(
	round, previous *cstypes.Round,
	inValue types.Hash,
	selfKey string,
	decrypter cstypes.ShareDecrypter,
) {
	self, ok := round.Miners[selfKey]
	if !ok {
		return
	}

	ss.share(round, self, inValue)

	if previous.IsEmpty() || previous.TermNumber != round.TermNumber || decrypter == nil {
		return
	}
	ss.recover(round, previous, selfKey, decrypter)
}

func (ss *SecretSharer) share(round *cstypes.Round, self *cstypes.MinerInRound, inValue types.Hash) {
	n := round.MinersCount()
	shares, err := crypto.EncodeSecret(inValue, cstypes.MinimumCount(n), n)
	if err != nil {
		ss.logger.Error("Failed to encode in value", "round", round.RoundNumber, "err", err)
		return
	}

	if self.EncryptedInValues == nil {
		self.EncryptedInValues = make(map[string][]byte, n-1)
	}
	for _, m := range round.SortedMiners() {
		if m.PublicKey == self.PublicKey {
			continue
		}
		if m.Order < 1 || m.Order > n {
			ss.logger.Error("Invalid order", "miner", m.PublicKey, "order", m.Order)
			continue
		}
		ct, err := crypto.Encrypt(m.PublicKey, shares[m.Order-1])
		if err != nil {
			ss.logger.Error("Failed to encrypt share", "to", m.PublicKey, "err", err)
			continue
		}
		self.EncryptedInValues[m.PublicKey] = ct
	}
}

func (ss *SecretSharer) recover(round, previous *cstypes.Round, selfKey string, decrypter cstypes.ShareDecrypter) {
	prevCount := previous.MinersCount()
	minimum := cstypes.MinimumCount(prevCount)

	for _, their := range previous.SortedMiners() {
		if their.PublicKey == selfKey {
			continue
		}
		ct, ok := their.EncryptedInValues[selfKey]
		if !ok {
			continue
		}
		target, ok := round.Miners[their.PublicKey]
		if !ok {
			continue
		}

		pt, err := decrypter.Decrypt(ct)
		if err != nil {
			ss.logger.Error("Failed to decrypt share", "from", their.PublicKey, "err", err)
			continue
		}
		if target.DecryptedPreviousInValues == nil {
			target.DecryptedPreviousInValues = make(map[string][]byte)
		}
		target.DecryptedPreviousInValues[selfKey] = pt

		if len(target.PreviousInValue) != 0 {
			continue
		}
		if len(target.DecryptedPreviousInValues) < minimum {
			ss.logger.Debug("Not enough shares to recover", "miner", their.PublicKey,
				"have", len(target.DecryptedPreviousInValues), "need", minimum)
			continue
		}

		decryptors := make([]string, 0, len(target.DecryptedPreviousInValues))
		for k := range target.DecryptedPreviousInValues {
			decryptors = append(decryptors, k)
		}
		sort.Strings(decryptors)

		shares := make([][]byte, 0, len(decryptors))
		orders := make([]int, 0, len(decryptors))
		for _, k := range decryptors {
			pm, ok := previous.Miners[k]
			if !ok {
				continue
			}
			shares = append(shares, target.DecryptedPreviousInValues[k])
			orders = append(orders, pm.Order)
		}

		recovered, err := crypto.DecodeSecret(shares, orders, minimum, prevCount)
		if err != nil {
			ss.logger.Debug("Failed to recover previous in value", "miner", their.PublicKey, "err", err)
			continue
		}
		if !bytes.Equal(types.HashOf(recovered), their.OutValue) {
			ss.logger.Error("Recovered in value mismatch out value", "miner", their.PublicKey)
			continue
		}
		ss.logger.Debug("Recovered previous in value", "miner", their.PublicKey)
		target.PreviousInValue = recovered
	}
}
