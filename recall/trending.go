package recall

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/utils"
)

// DefaultTrendingKey 是热门榜在 Store 中的有序集合 key。
const DefaultTrendingKey = "trending:movies"

// Trending 是热门召回源：优先从 Store 的有序集合读取热门榜
// （member 为 movie id，score 为热度），Store 为空或读取失败时
// 退回注入的 TrendingProvider。
//
// Trending 自身实现 core.TrendingProvider，Orchestrator 把它当作
// 冷启动与模型不可用时的兜底榜单。
type Trending struct {
	Store core.KeyValueStore
	Key   string // 默认 DefaultTrendingKey

	Catalog  core.MovieCatalog
	Provider core.TrendingProvider // 兜底榜单来源

	Logger *slog.Logger
}

var _ core.TrendingProvider = (*Trending)(nil)

func (r *Trending) Name() string        { return "recall.trending" }
func (r *Trending) Kind() pipeline.Kind { return pipeline.KindRecall }

func (r *Trending) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	n := rctx.TopN
	entries, err := r.Trending(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Item, 0, len(entries))
	for _, e := range entries {
		it := core.NewItem(e.MovieID)
		it.Title = e.Title
		it.FinalScore = e.Score
		it.PutLabel("recall_source", utils.Label{Value: "trending", Source: "recall"})
		out = append(out, it)
	}
	return out, nil
}

// Trending 实现 core.TrendingProvider。
func (r *Trending) Trending(ctx context.Context, n int) ([]core.TrendingEntry, error) {
	if n <= 0 {
		n = 10
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if entries := r.fromStore(ctx, n, logger); len(entries) > 0 {
		return entries, nil
	}

	if r.Provider == nil {
		return nil, nil
	}
	return r.Provider.Trending(ctx, n)
}

func (r *Trending) fromStore(ctx context.Context, n int, logger *slog.Logger) []core.TrendingEntry {
	if r.Store == nil {
		return nil
	}
	key := r.Key
	if key == "" {
		key = DefaultTrendingKey
	}

	members, err := r.Store.ZRange(ctx, key, 0, int64(n)-1)
	if err != nil || len(members) == 0 {
		return nil
	}

	entries := make([]core.TrendingEntry, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			logger.Warn("malformed trending member, skipping", "key", key, "member", member)
			continue
		}
		score, err := r.Store.ZScore(ctx, key, member)
		if err != nil {
			score = 0
		}

		title := ""
		if r.Catalog != nil {
			if m, err := r.Catalog.Get(ctx, id); err == nil {
				title = m.Title
			} else if !core.IsNotFound(err) {
				logger.Warn("catalog lookup failed", "movie_id", id, "err", err)
			}
		}
		entries = append(entries, core.TrendingEntry{MovieID: id, Title: title, Score: score})
	}
	return entries
}
