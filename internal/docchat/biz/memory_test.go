package biz_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docchat/internal/docchat/biz"
)

func TestConversationMemoryOrdering(t *testing.T) {
	memory := biz.NewConversationMemory()

	for i := 0; i < 5; i++ {
		memory.Append(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	assert.Equal(t, 5, memory.Len())

	recent := memory.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "q2", recent[0].Question)
	assert.Equal(t, "q4", recent[2].Question)
	assert.Equal(t, "a4", recent[2].Answer)
}

func TestConversationMemoryRecentEdgeCases(t *testing.T) {
	memory := biz.NewConversationMemory()
	memory.Append("q", "a")

	assert.Nil(t, memory.Recent(0))
	assert.Nil(t, memory.Recent(-1))

	// 窗口大于总量时返回全部。
	all := memory.Recent(10)
	require.Len(t, all, 1)
	assert.Equal(t, "q", all[0].Question)
}

func TestConversationMemoryConcurrentReads(t *testing.T) {
	memory := biz.NewConversationMemory()
	for i := 0; i < 20; i++ {
		memory.Append(fmt.Sprintf("q%d", i), "a")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = memory.Recent(10)
				_ = memory.Len()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, memory.Len())
}
