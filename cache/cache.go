// Package cache 提供带容量上限的泛型 LRU 缓存
//
// 用于缓存按 (根模型, 关联路径) 解析出的 JOIN 计划：别名注册表只增不删，
// 同一组路径的解析结果在进程内不会变化，因此条目不设过期时间，只按容量驱逐。
package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxSize MaxSize 未设置时的容量
const DefaultMaxSize = 1024

// Cache 并发安全的 LRU 缓存
type Cache[K comparable, V any] struct {
	name    string
	maxSize int
	lru     *lru.Cache[K, V]
	loads   singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Config 缓存配置
type Config struct {
	// Name 缓存名称（用于日志）
	Name string

	// MaxSize 最大条目数，<= 0 时取 DefaultMaxSize
	MaxSize int
}

// Stats 缓存统计信息
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// New 创建缓存
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultMaxSize
	}
	inner, err := lru.New[K, V](config.MaxSize)
	if err != nil {
		// 仅在 size <= 0 时出错，上面已排除
		panic(err)
	}
	return &Cache[K, V]{name: config.Name, maxSize: config.MaxSize, lru: inner}
}

// Get 获取缓存值并刷新其 LRU 位置
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set 设置缓存值，超出容量时驱逐最久未使用的条目
func (c *Cache[K, V]) Set(key K, value V) {
	if c.lru.Add(key, value) {
		c.evictions.Add(1)
	}
}

// GetOrLoad 命中时返回缓存值，否则调用 load 并缓存其结果；load 出错时不缓存。
// 同一 key 并发未命中时共享一次 load。
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	res, err, _ := c.loads.Do(fmt.Sprint(key), func() (any, error) {
		v, err := load()
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})
	v, _ := res.(V)
	return v, err
}

// Delete 删除条目，返回是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	return c.lru.Remove(key)
}

// Clear 清空缓存，不计入驱逐次数
func (c *Cache[K, V]) Clear() {
	c.lru.Purge()
}

// Size 当前条目数
func (c *Cache[K, V]) Size() int {
	return c.lru.Len()
}

// Stats 返回统计信息快照
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.lru.Len(),
	}
}

func (c *Cache[K, V]) String() string {
	s := c.Stats()
	return fmt.Sprintf("Cache[%s]: size=%d/%d, hits=%d, misses=%d, evictions=%d",
		c.name, s.Size, c.maxSize, s.Hits, s.Misses, s.Evictions)
}
