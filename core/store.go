package core

import "context"

// Store 是存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//   - 避免循环依赖：领域层不依赖基础设施层
//
// 使用场景：
//   - Q 值持久化：feedback.Agent 的写穿缓存落盘
//   - 结果缓存：推荐结果按用户缓存（带 TTL）
//   - 热门榜与流行度计数：trending 召回、公平性指标
//
// 实现：
//   - store.MemoryStore（测试/开发）
//   - store.RedisStore（生产）
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值；key 不存在时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，可选 TTL（秒）
	Set(ctx context.Context, key string, value []byte, ttl ...int) error

	// Delete 删除单个 key
	Delete(ctx context.Context, key string) error

	// BatchGet 批量读取（减少网络往返），不存在的 key 直接缺席
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// Close 关闭连接/释放资源
	Close() error
}

// KeyValueStore 是 Store 的扩展接口，支持更丰富的 KV 操作。
//
// 扩展功能：
//   - 有序集合（SortedSet）：热门榜 trending:movies
//   - 哈希表（Hash）：流行度计数表 popularity:movies、已看集合 seen:{user}
//
// 如果后端不支持某些操作，可返回 ErrStoreNotSupported。
type KeyValueStore interface {
	Store

	// ZAdd 向有序集合添加成员（热门榜写入）
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRange 按分数降序获取有序集合成员（TopN 召回）
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// ZScore 获取成员的分数；成员不存在时返回 ErrStoreNotFound
	ZScore(ctx context.Context, key string, member string) (float64, error)

	// HGet 读取 Hash 字段；字段不存在时返回 ErrStoreNotFound
	HGet(ctx context.Context, key, field string) ([]byte, error)

	// HSet 写入 Hash 字段
	HSet(ctx context.Context, key, field string, value []byte) error

	// HGetAll 读取整个 Hash（公平性指标批量读流行度表）
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)

	// HIncrBy 对 Hash 字段做原子自增（反馈流更新流行度计数）
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
}
