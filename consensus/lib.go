package consensus

import (
	"sort"

	cstypes "dpos_demo/consensus/types"
)

// CalculateLIB 返回最新不可逆块相对当前高度的偏移量
// 本轮公布OutValue的出块者不足时，倒序借用上一轮的出块者补足
func CalculateLIB(current, previous *cstypes.Round) (int, bool) {
	n := current.MinersCount()
	if n == 1 {
		return 1, true
	}

	minimum := cstypes.MinimumCount(n)
	counted := make(map[string]bool, n)
	for key, m := range current.Miners {
		if len(m.OutValue) != 0 {
			counted[key] = true
		}
	}
	validCurrent := len(counted)
	if validCurrent >= minimum {
		return minimum, true
	}

	if previous.IsEmpty() {
		return 0, false
	}

	prevMiners := previous.SortedMiners()
	sort.SliceStable(prevMiners, func(i, j int) bool {
		return prevMiners[i].Order > prevMiners[j].Order
	})

	traversal := validCurrent
	for i := 0; i < len(prevMiners); i++ {
		traversal++
		if traversal > n {
			return 0, false
		}
		m := prevMiners[i]
		if len(m.OutValue) != 0 && !counted[m.PublicKey] {
			counted[m.PublicKey] = true
		}
		if len(counted) >= minimum {
			return len(counted), true
		}
	}
	return 0, false
}
