package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateLIBSingleMiner(t *testing.T) {
	current := makeRound([]string{"a"}, testStart, 5, 1)
	offset, found := CalculateLIB(current, nil)
	assert.True(t, found)
	assert.Equal(t, 1, offset)
}

func TestCalculateLIBCurrentRoundEnough(t *testing.T) {
	keys := []string{"a", "b", "c", "d"}
	current := makeRound(keys, testStart, 2, 1)
	for _, k := range []string{"a", "b", "d"} {
		current.Miners[k].OutValue = []byte("out")
	}
	offset, found := CalculateLIB(current, nil)
	assert.True(t, found)
	assert.Equal(t, 3, offset, "minimum = 4*2/3+1 = 3")
}

// A、B公布了OutValue，C错过时间槽
func TestCalculateLIBThreeMiners(t *testing.T) {
	keys := []string{"a", "b", "c"}
	current := makeRound(keys, testStart, 2, 1)
	current.Miners["a"].OutValue = []byte("out")
	current.Miners["b"].OutValue = []byte("out")

	_, found := CalculateLIB(current, nil)
	assert.False(t, found, "2 < 3，没有上一轮时找不到")

	// 上一轮只有A、B出块，补不足
	previous := makeRound(keys, testStart, 1, 1)
	previous.Miners["a"].OutValue = []byte("out")
	previous.Miners["b"].OutValue = []byte("out")
	_, found = CalculateLIB(current, previous)
	assert.False(t, found)

	// 上一轮C出块，倒序第一个就是C
	previous.Miners["c"].OutValue = []byte("out")
	offset, found := CalculateLIB(current, previous)
	assert.True(t, found)
	assert.Equal(t, 3, offset)
}

func TestCalculateLIBTraversalBounded(t *testing.T) {
	keys := []string{"a", "b", "c", "d"}
	current := makeRound(keys, testStart, 2, 1)
	current.Miners["a"].OutValue = []byte("out")
	current.Miners["b"].OutValue = []byte("out")

	// 上一轮中只有A出块，A排在最后，遍历到A时已经超过了N
	previous := makeRound(keys, testStart, 1, 1)
	previous.Miners["a"].OutValue = []byte("out")
	_, found := CalculateLIB(current, previous)
	assert.False(t, found)

	previous.Miners["d"].OutValue = []byte("out")
	offset, found := CalculateLIB(current, previous)
	assert.True(t, found)
	assert.Equal(t, 3, offset)
}
