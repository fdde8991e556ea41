package consensus

import (
	"bytes"

	cstypes "dpos_demo/consensus/types"
)

// validateBeforeExecution 只检查共识数据本身，不修改任何状态
// victories为空表示没有足够的选举结果，此时不检查新term的出块者
func validateBeforeExecution(info *cstypes.ConsensusInformation, current *cstypes.Round, victories []string) cstypes.ValidationResult {
	if info == nil || info.Round.IsEmpty() {
		return cstypes.ValidationFailed("Invalid consensus information.")
	}
	if !current.IsMiner(info.SenderPublicKey) {
		return cstypes.ValidationFailed("Sender is not a miner.")
	}

	switch info.Behaviour {
	case cstypes.BehaviourUpdateValueWithoutPreviousInValue, cstypes.BehaviourUpdateValue:
		if info.Round.RoundID() != current.RoundID() {
			return cstypes.ValidationFailed("Round Id not matched.")
		}
		if !hasOnlyNewOutValueOfSender(info, current) {
			return cstypes.ValidationFailed("Incorrect new Out Value.")
		}

	case cstypes.BehaviourNextRound:
		if info.Round.RoundNumber != current.RoundNumber+1 {
			return cstypes.ValidationFailed("Incorrect round number for next round.")
		}
		for _, m := range info.Round.Miners {
			if len(m.InValue) != 0 || len(m.OutValue) != 0 {
				return cstypes.ValidationFailed("Incorrect next round information.")
			}
		}

	case cstypes.BehaviourNextTerm:
		if info.Round.TermNumber != current.TermNumber+1 {
			return cstypes.ValidationFailed("Incorrect term number for next round.")
		}
		if info.Round.RoundNumber != current.RoundNumber+1 {
			return cstypes.ValidationFailed("Incorrect round number for next round.")
		}
		if len(victories) != 0 {
			expected := cstypes.ToMiners(victories, info.Round.TermNumber).GetMinersHash()
			if !bytes.Equal(info.Round.ToMiners().GetMinersHash(), expected) {
				return cstypes.ValidationFailed("Incorrect miners list.")
			}
		}

	default:
		return cstypes.ValidationFailed("Invalid behaviour.")
	}

	return cstypes.ValidationOK()
}

// 本次更新只能新增发送者一个人的OutValue
func hasOnlyNewOutValueOfSender(info *cstypes.ConsensusInformation, current *cstypes.Round) bool {
	filled := 0
	for key, m := range info.Round.Miners {
		if len(m.OutValue) == 0 {
			continue
		}
		cm, ok := current.Miners[key]
		if !ok {
			return false
		}
		if len(cm.OutValue) != 0 {
			continue
		}
		if key != info.SenderPublicKey {
			return false
		}
		filled++
	}
	return filled == 1
}

func validateAfterExecution(info *cstypes.ConsensusInformation, stored *cstypes.Round) cstypes.ValidationResult {
	if info == nil || info.Round.IsEmpty() || stored.IsEmpty() {
		return cstypes.ValidationFailed("Invalid consensus information.")
	}
	exclude := info.Behaviour == cstypes.BehaviourUpdateValueWithoutPreviousInValue
	if !bytes.Equal(stored.Hash(exclude), info.Round.Hash(exclude)) {
		return cstypes.ValidationFailed("Current round information is different with consensus extra data.")
	}
	return cstypes.ValidationOK()
}
