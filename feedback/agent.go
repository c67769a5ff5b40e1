// Package feedback 实现在线反馈学习：一个持久化的 TD(0) Q 值学习器、
// 把 Q 值融入最终排序的 Pipeline 节点，以及消费反馈流的 worker 池。
package feedback

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/rushteam/movierec/core"
)

// TD(0) 学习参数与分数融合权重的默认值。
const (
	DefaultLearningRate = 0.01
	DefaultDiscount     = 0.9

	// FinalScore = ScoreWeight*DiversityScore + QWeight*Q
	ScoreWeight = 0.7
	QWeight     = 0.3
)

// DefaultQKeyPrefix 是 Q 值在 Store 中的 key 前缀，实际 key 为 q:{user}:{movie}。
const DefaultQKeyPrefix = "q"

const qLockStripes = 128

type qKey struct {
	user  int64
	movie int64
}

// Agent 是持久化的在线反馈学习器。每个 (user, movie) 维护一个 Q 值，
// 按单步 TD(0) 规则更新：
//
//	Q ← Q + lr*(reward + discount*nextMax - Q)
//
// Q 值经写穿缓存落到 Store：读缓存未命中时回源 Store，写同时更新
// 缓存与 Store。同一 key 的读-改-写在条带锁下串行，并发请求对同一
// (user, movie) 的更新不会互相覆盖。
//
// Store 写失败时记日志并保留内存中的新值（进程存活期间结果一致，
// 崩溃则丢失该次更新——这是记录在案的持久性缺口，不在此处修复）。
type Agent struct {
	store     core.Store
	lr        float64
	discount  float64
	keyPrefix string
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[qKey]float64

	locks [qLockStripes]sync.Mutex
}

// AgentOption 配置 Agent。
type AgentOption func(*Agent)

// WithLearningRate 设置学习率（常用区间 0.01~0.05）。
func WithLearningRate(lr float64) AgentOption {
	return func(a *Agent) {
		if lr > 0 {
			a.lr = lr
		}
	}
}

// WithDiscount 设置折扣因子（常用区间 0.9~0.95）。
func WithDiscount(discount float64) AgentOption {
	return func(a *Agent) {
		if discount > 0 {
			a.discount = discount
		}
	}
}

// WithKeyPrefix 设置 Q 值的存储 key 前缀。
func WithKeyPrefix(prefix string) AgentOption {
	return func(a *Agent) {
		if prefix != "" {
			a.keyPrefix = prefix
		}
	}
}

// WithLogger 设置日志器。
func WithLogger(logger *slog.Logger) AgentOption {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAgent(store core.Store, opts ...AgentOption) *Agent {
	a := &Agent{
		store:     store,
		lr:        DefaultLearningRate,
		discount:  DefaultDiscount,
		keyPrefix: DefaultQKeyPrefix,
		logger:    slog.Default(),
		cache:     make(map[qKey]float64),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Q 返回 (user, movie) 的当前 Q 值，没有任何历史反馈时为 0.0。
// 缓存未命中时回源 Store。
func (a *Agent) Q(ctx context.Context, userID, movieID int64) float64 {
	k := qKey{user: userID, movie: movieID}

	a.mu.RLock()
	v, ok := a.cache[k]
	a.mu.RUnlock()
	if ok {
		return v
	}

	return a.load(ctx, k)
}

func (a *Agent) load(ctx context.Context, k qKey) float64 {
	if a.store == nil {
		return 0
	}
	raw, err := a.store.Get(ctx, a.storeKey(k))
	if err != nil {
		if !core.IsNotFound(err) {
			a.logger.Warn("q-value read failed", "user_id", k.user, "movie_id", k.movie, "err", err)
		}
		return 0
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		a.logger.Warn("malformed q-value in store", "user_id", k.user, "movie_id", k.movie, "raw", string(raw))
		return 0
	}

	// 回填只在 key 仍缺席时生效：store 读取期间可能有 Update 持条带锁
	// 写入了更新值，无条件覆盖会用旧值冲掉它，吞掉那次更新
	a.mu.Lock()
	if cur, ok := a.cache[k]; ok {
		a.mu.Unlock()
		return cur
	}
	a.cache[k] = v
	a.mu.Unlock()
	return v
}

// Update 按 TD(0) 规则更新单个 Q 值并持久化，返回更新后的值。
// 同一 key 的并发 Update 在条带锁下串行。返回的 error 仅表示持久化
// 失败；此时内存/缓存中的值已经是更新后的。
func (a *Agent) Update(ctx context.Context, userID, movieID int64, reward, nextMax float64) (float64, error) {
	k := qKey{user: userID, movie: movieID}

	lock := &a.locks[stripe(k)]
	lock.Lock()
	defer lock.Unlock()

	cur := a.Q(ctx, userID, movieID)
	newQ := cur + a.lr*(reward+a.discount*nextMax-cur)

	a.mu.Lock()
	a.cache[k] = newQ
	a.mu.Unlock()

	if a.store == nil {
		return newQ, nil
	}
	raw := []byte(strconv.FormatFloat(newQ, 'g', -1, 64))
	if err := a.store.Set(ctx, a.storeKey(k), raw); err != nil {
		a.logger.Error("q-value persist failed, in-memory state retained",
			"user_id", userID, "movie_id", movieID, "q", newQ, "err", err)
		return newQ, err
	}
	return newQ, nil
}

// Apply 处理单条反馈信号（RecordFeedback 路径）：nextMax 取 0.0。
// 返回时更新已持久化（除非 error 非空，此时仅内存生效）。
func (a *Agent) Apply(ctx context.Context, userID, movieID int64, reward float64) (float64, error) {
	return a.Update(ctx, userID, movieID, reward, 0)
}

// Adjust 是推荐请求的反馈阶段：对批次内每个候选应用一次 Q 更新
// （本批次没有反馈信号的候选 reward 取 0，Q 仍会向 discount*nextMax
// 漂移），随后计算 FinalScore 并按其降序重排。
//
// nextMax 取更新前整个候选集的最大 Q 值，候选集为空时为 0。
func (a *Agent) Adjust(ctx context.Context, userID int64, items []*core.Item, rewards map[int64]float64) []*core.Item {
	if len(items) == 0 {
		return items
	}

	nextMax := 0.0
	first := true
	for _, it := range items {
		if it == nil {
			continue
		}
		q := a.Q(ctx, userID, it.ID)
		if first || q > nextMax {
			nextMax = q
			first = false
		}
	}

	for _, it := range items {
		if it == nil {
			continue
		}
		newQ, _ := a.Update(ctx, userID, it.ID, rewards[it.ID], nextMax)
		it.FinalScore = ScoreWeight*it.DiversityScore + QWeight*newQ
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].FinalScore != items[j].FinalScore {
			return items[i].FinalScore > items[j].FinalScore
		}
		return items[i].ID < items[j].ID
	})
	return items
}

func (a *Agent) storeKey(k qKey) string {
	return a.keyPrefix + ":" + strconv.FormatInt(k.user, 10) + ":" + strconv.FormatInt(k.movie, 10)
}

func stripe(k qKey) uint64 {
	h := fnv.New64a()
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(k.user >> (8 * i))
		buf[8+i] = byte(k.movie >> (8 * i))
	}
	h.Write(buf[:])
	return h.Sum64() % qLockStripes
}
