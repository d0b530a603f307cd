package codec

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/bananaflow/internal/metrics"
)

const redisKeyPrefix = "bananaflow:encode_cache:"

// EncodeCache 是内容寻址的有界编码缓存。
// 本地层为互斥锁保护的 LRU，临界区只做哈希查找/插入/淘汰，
// 编码本身永远在锁外执行。
type EncodeCache struct {
	mu    sync.Mutex
	local *lruCache

	rdb      *redis.Client
	redisTTL time.Duration

	logger    *zap.Logger
	collector *metrics.Collector
}

// NewEncodeCache 创建编码缓存。capacity 小于 1 时按 1 处理。
func NewEncodeCache(capacity int, logger *zap.Logger, collector *metrics.Collector) *EncodeCache {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EncodeCache{
		local:     newLRUCache(capacity),
		logger:    logger.With(zap.String("component", "encode_cache")),
		collector: collector,
	}
}

// WithRedis 挂载 Redis 二级缓存。纯性能优化：任何 Redis 故障
// 只记 warn 并回退到本地编码，不向调用方传播。
func (c *EncodeCache) WithRedis(rdb *redis.Client, ttl time.Duration) *EncodeCache {
	c.rdb = rdb
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.redisTTL = ttl
	return c
}

// GetOrEncode 返回 raw 的 base64 PNG 编码，优先走缓存。
func (c *EncodeCache) GetOrEncode(ctx context.Context, raw []byte) (string, error) {
	key := contentKey(raw)

	c.mu.Lock()
	if value, ok := c.local.get(key); ok {
		c.mu.Unlock()
		c.collector.CacheHit()
		return value, nil
	}
	c.mu.Unlock()

	if value, ok := c.redisGet(ctx, key); ok {
		c.collector.CacheHit()
		c.mu.Lock()
		c.local.set(key, value)
		c.mu.Unlock()
		return value, nil
	}

	c.collector.CacheMiss()

	// 高开销编码在锁外执行
	encoded, err := encodeToBase64PNG(raw)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.local.set(key, encoded)
	c.mu.Unlock()

	c.redisSet(ctx, key, encoded)
	return encoded, nil
}

// EncodeAll 批量编码参考图，跳过空输入，保持顺序。
// 供调度器在派发前一次性准备整批共享输入。
func (c *EncodeCache) EncodeAll(ctx context.Context, inputs [][]byte) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	encoded := make([]string, 0, len(inputs))
	for _, raw := range inputs {
		if len(raw) == 0 {
			continue
		}
		value, err := c.GetOrEncode(ctx, raw)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, value)
	}
	return encoded, nil
}

// Len 返回本地缓存当前条目数。
func (c *EncodeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local.len()
}

func (c *EncodeCache) redisGet(ctx context.Context, key string) (string, bool) {
	if c.rdb == nil {
		return "", false
	}
	value, err := c.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("redis get 失败，回退本地编码", zap.Error(err))
		}
		return "", false
	}
	return value, true
}

func (c *EncodeCache) redisSet(ctx context.Context, key, value string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, value, c.redisTTL).Err(); err != nil {
		c.logger.Warn("redis set 失败", zap.Error(err))
	}
}

// ============================================================
// LRU 本地缓存实现（双向链表，全部操作 O(1)）
// ============================================================

type lruCache struct {
	capacity int
	items    map[string]*lruNode
	head     *lruNode // 最近使用
	tail     *lruNode // 最久未使用
}

type lruNode struct {
	key   string
	value string
	prev  *lruNode
	next  *lruNode
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		items:    make(map[string]*lruNode),
	}
}

func (c *lruCache) get(key string) (string, bool) {
	node, ok := c.items[key]
	if !ok {
		return "", false
	}
	c.moveToHead(node)
	return node.value, true
}

func (c *lruCache) set(key, value string) {
	if node, ok := c.items[key]; ok {
		node.value = value
		c.moveToHead(node)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictTail()
	}

	node := &lruNode{key: key, value: value}
	c.items[key] = node
	c.addToHead(node)
}

func (c *lruCache) len() int { return len(c.items) }

func (c *lruCache) addToHead(node *lruNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *lruCache) removeNode(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
}

func (c *lruCache) moveToHead(node *lruNode) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	c.addToHead(node)
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.key)
	c.removeNode(c.tail)
}
