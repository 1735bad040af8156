package cache

import (
	stdErrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCache_BasicOperations 测试基本操作
func TestCache_BasicOperations(t *testing.T) {
	c := New[string, int](Config{Name: "test", MaxSize: 100})

	c.Set("User:company", 100)
	value, found := c.Get("User:company")
	assert.True(t, found)
	assert.Equal(t, 100, value)

	_, found = c.Get("nonexistent")
	assert.False(t, found)

	assert.True(t, c.Delete("User:company"))
	_, found = c.Get("User:company")
	assert.False(t, found)
	assert.False(t, c.Delete("User:company"))
}

// TestCache_Update 更新已有条目不改变大小
func TestCache_Update(t *testing.T) {
	c := New[int64, string](Config{MaxSize: 10})

	c.Set(1, "first")
	c.Set(1, "second")

	value, found := c.Get(1)
	require.True(t, found)
	assert.Equal(t, "second", value)
	assert.Equal(t, 1, c.Size())
}

// TestCache_LRUEviction 超出容量时驱逐最久未使用的条目
func TestCache_LRUEviction(t *testing.T) {
	c := New[string, int](Config{Name: "plans", MaxSize: 3})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// 访问 a，使 b 成为最久未使用
	_, _ = c.Get("a")
	c.Set("d", 4)

	_, found := c.Get("b")
	assert.False(t, found)
	for _, k := range []string{"a", "c", "d"} {
		_, found := c.Get(k)
		assert.True(t, found, k)
	}

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, "Cache[plans]: size=3/3, hits=4, misses=1, evictions=1", c.String())
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New[string, int](Config{MaxSize: 10})

	calls := 0
	load := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)

	boom := stdErrors.New("boom")
	_, err = c.GetOrLoad("bad", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	_, found := c.Get("bad")
	assert.False(t, found)
}

func TestCache_Clear(t *testing.T) {
	c := New[string, int](Config{})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	assert.Zero(t, c.Size())
	assert.Zero(t, c.Stats().Evictions)
	c.Set("c", 3)
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, "Cache[unnamed]: size=1/1024, hits=0, misses=0, evictions=0", c.String())
}

func TestCache_GetOrLoadConcurrent(t *testing.T) {
	c := New[string, int](Config{MaxSize: 4})

	var calls atomic.Int32
	var wg sync.WaitGroup
	results := make([]int, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad("User|company", func() (int, error) {
				calls.Add(1)
				return 7, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 7, v)
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.Equal(t, 1, c.Size())
}

// TestCache_Concurrent 并发读写
func TestCache_Concurrent(t *testing.T) {
	c := New[string, int](Config{MaxSize: 50})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i*100+j)%80)
				c.Set(key, j)
				_, _ = c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 50)
}
