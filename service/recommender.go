// Package service 提供推荐服务的编排层：把各 Pipeline 阶段组装成
// 完整链路，处理冷启动与依赖不可用的兜底，并暴露反馈与公平性操作。
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/fairness"
	"github.com/rushteam/movierec/feedback"
	"github.com/rushteam/movierec/filter"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/rank"
	"github.com/rushteam/movierec/recall"
	"github.com/rushteam/movierec/rerank"
)

// Mode 选择重排档位：多样性（默认）或公平性。二者择一，不级联。
type Mode string

const (
	ModeDiversity Mode = "diversity"
	ModeFairness  Mode = "fairness"
)

// 冷启动判定与结果条数的默认值。
const (
	DefaultColdStartMin = 5
	DefaultTopN         = 10
)

// Config 是 Recommender 的装配配置。外部协作方（模型、索引、目录、
// 历史、榜单）由接入方实现并注入；Store 承载 Q 值、结果缓存与附属表。
type Config struct {
	Catalog   core.MovieCatalog
	Predictor core.RatingPredictor
	Index     core.SimilarityIndex
	History   core.RatingHistory
	Trending  core.TrendingProvider
	Store     core.KeyValueStore

	// Agent 可选；为 nil 时基于 Store 新建
	Agent *feedback.Agent

	// Mode 重排档位，默认 ModeDiversity
	Mode Mode

	// ColdStartMin 历史评分少于该值的用户走 trending 兜底，默认 5
	ColdStartMin int

	// Headroom 候选余量倍数，透传给 recall.CF
	Headroom int

	// CacheTTL 推荐结果缓存秒数，<= 0 表示不缓存
	CacheTTL int

	// FilterRules 配置下发的 CEL 过滤规则（命中即剔除）
	FilterRules []string

	Logger *slog.Logger
}

// Recommender 是推荐链路的 Orchestrator。
//
// 构造时做一次能力检查：评分模型与目录齐备时装配完整链路，
// 否则只保留 trending 兜底档（显式的链路变体，而不是在调用点
// 散落运行时分支）。
type Recommender struct {
	cfg    Config
	agent  *feedback.Agent
	pipe   *pipeline.Pipeline // nil 表示 fallback-only 变体
	logger *slog.Logger
}

func New(cfg Config) (*Recommender, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	agent := cfg.Agent
	if agent == nil {
		agent = feedback.NewAgent(cfg.Store, feedback.WithLogger(logger))
	}

	r := &Recommender{cfg: cfg, agent: agent, logger: logger}

	if cfg.Predictor == nil || cfg.Catalog == nil {
		logger.Info("predictor or catalog missing, assembling fallback-only recommender")
		return r, nil
	}

	pipe, err := r.buildPipeline()
	if err != nil {
		return nil, err
	}
	r.pipe = pipe
	return r, nil
}

func (r *Recommender) buildPipeline() (*pipeline.Pipeline, error) {
	nodes := []pipeline.Node{
		&recall.CF{
			Predictor: r.cfg.Predictor,
			Catalog:   r.cfg.Catalog,
			Headroom:  r.cfg.Headroom,
			Logger:    r.logger,
		},
	}

	var filters []filter.Filter
	if r.cfg.Store != nil {
		filters = append(filters, filter.NewSeenFilter(r.cfg.Store, ""))
	}
	for _, expr := range r.cfg.FilterRules {
		rf, err := filter.NewRuleFilter(expr)
		if err != nil {
			return nil, err
		}
		filters = append(filters, rf)
	}
	if len(filters) > 0 {
		nodes = append(nodes, &filter.FilterNode{Filters: filters})
	}

	nodes = append(nodes,
		&rank.Temporal{},
		&rank.Fusion{Index: r.cfg.Index, Logger: r.logger},
	)

	if r.cfg.Mode == ModeFairness {
		nodes = append(nodes, &fairness.Node{Store: r.cfg.Store, Logger: r.logger})
	} else {
		nodes = append(nodes, &rerank.Diversity{})
	}

	nodes = append(nodes,
		&feedback.Node{Agent: r.agent},
		&rerank.TopN{},
	)
	return &pipeline.Pipeline{Nodes: nodes}, nil
}

// Recommend 为用户生成 TopN 推荐。永远返回一个列表：
// 冷启动用户与模型不可用时退回 trending 兜底，兜底也不可用时
// 返回空列表，从不向调用方抛错。
func (r *Recommender) Recommend(ctx context.Context, userID int64, topN int) []core.Recommendation {
	if topN <= 0 {
		topN = DefaultTopN
	}

	if recs, ok := r.cachedRecs(ctx, userID, topN); ok {
		return recs
	}

	recs := r.recommend(ctx, userID, topN)
	r.cacheRecs(ctx, userID, topN, recs)
	return recs
}

func (r *Recommender) recommend(ctx context.Context, userID int64, topN int) []core.Recommendation {
	if r.pipe == nil {
		return r.trendingRecs(ctx, topN)
	}

	if count, ok := r.ratingCount(ctx, userID); ok && count < r.coldStartMin() {
		r.logger.Info("cold-start user, serving trending list",
			"user_id", userID, "rating_count", count)
		return r.trendingRecs(ctx, topN)
	}

	rctx := &core.RecommendContext{UserID: userID, TopN: topN}
	items, err := r.pipe.Run(ctx, rctx, nil)
	if err != nil {
		if core.IsUnavailable(err) {
			r.logger.Info("predictor unavailable, serving trending list", "user_id", userID)
		} else {
			r.logger.Error("pipeline failed, serving trending list", "user_id", userID, "err", err)
		}
		return r.trendingRecs(ctx, topN)
	}
	if len(items) == 0 {
		return r.trendingRecs(ctx, topN)
	}

	recs := make([]core.Recommendation, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		recs = append(recs, core.Recommendation{
			MovieID: it.ID,
			Title:   it.Title,
			Score:   it.FinalScore,
		})
	}
	return recs
}

// ratingCount 返回用户历史评分数；历史服务缺失或出错时视为未知，
// 不触发冷启动兜底。
func (r *Recommender) ratingCount(ctx context.Context, userID int64) (int, bool) {
	if r.cfg.History == nil {
		return 0, false
	}
	count, err := r.cfg.History.RatingCount(ctx, userID)
	if err != nil {
		r.logger.Warn("rating count lookup failed", "user_id", userID, "err", err)
		return 0, false
	}
	return count, true
}

func (r *Recommender) trendingRecs(ctx context.Context, topN int) []core.Recommendation {
	if r.cfg.Trending == nil {
		return []core.Recommendation{}
	}
	entries, err := r.cfg.Trending.Trending(ctx, topN)
	if err != nil {
		r.logger.Error("trending provider failed", "err", err)
		return []core.Recommendation{}
	}
	recs := make([]core.Recommendation, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, core.Recommendation{MovieID: e.MovieID, Title: e.Title, Score: e.Score})
	}
	if len(recs) > topN {
		recs = recs[:topN]
	}
	return recs
}

// RecordFeedback 记录一条反馈信号并更新对应的 Q 值。
// 返回时更新已持久化；持久化失败时返回 error，此时内存中的学习
// 状态已生效（进程崩溃会丢失该次更新）。
func (r *Recommender) RecordFeedback(ctx context.Context, userID, movieID int64, reward float64) error {
	_, err := r.agent.Apply(ctx, userID, movieID, reward)
	r.invalidateRecs(ctx, userID)
	return err
}

// FairnessReport 对一份最终推荐列表计算公平性指标。
// 流行度表来自 Store，类型表来自目录。
func (r *Recommender) FairnessReport(ctx context.Context, recs []int64) (fairness.Report, error) {
	popularity, err := fairness.LoadPopularity(ctx, r.cfg.Store, "")
	if err != nil {
		return fairness.Report{}, err
	}

	genres := make(map[int64][]string)
	if r.cfg.Catalog != nil {
		movies, err := r.cfg.Catalog.All(ctx)
		if err != nil {
			return fairness.Report{}, err
		}
		for _, m := range movies {
			if m != nil && len(m.Genres) > 0 {
				genres[m.ID] = m.Genres
			}
		}
	}

	return fairness.Metrics(recs, popularity, genres), nil
}

// RerankForFairness 用流行度惩罚重排一份推荐列表（替代多样性重排）。
// alpha <= 0 时取 fairness.DefaultAlpha，beta < 0 时取 fairness.DefaultBeta。
func (r *Recommender) RerankForFairness(
	ctx context.Context,
	recs []int64,
	scores map[int64]float64,
	alpha, beta float64,
) ([]int64, error) {
	if alpha <= 0 {
		alpha = fairness.DefaultAlpha
	}
	if beta < 0 {
		beta = fairness.DefaultBeta
	}
	popularity, err := fairness.LoadPopularity(ctx, r.cfg.Store, "")
	if err != nil {
		return nil, err
	}
	return fairness.ReRank(recs, scores, popularity, alpha, beta), nil
}

func (r *Recommender) coldStartMin() int {
	if r.cfg.ColdStartMin > 0 {
		return r.cfg.ColdStartMin
	}
	return DefaultColdStartMin
}

// 结果缓存：按用户缓存一份 (topN, recs)，反馈写入时失效。
// 显式持有、注入的缓存对象，不用包级全局状态。

type cachedEntry struct {
	TopN int                   `json:"top_n"`
	Recs []core.Recommendation `json:"recs"`
}

func recCacheKey(userID int64) string {
	return "rec:" + strconv.FormatInt(userID, 10)
}

func (r *Recommender) cachedRecs(ctx context.Context, userID int64, topN int) ([]core.Recommendation, bool) {
	if r.cfg.Store == nil || r.cfg.CacheTTL <= 0 {
		return nil, false
	}
	raw, err := r.cfg.Store.Get(ctx, recCacheKey(userID))
	if err != nil {
		return nil, false
	}
	var entry cachedEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.TopN != topN {
		return nil, false
	}
	return entry.Recs, true
}

func (r *Recommender) cacheRecs(ctx context.Context, userID int64, topN int, recs []core.Recommendation) {
	if r.cfg.Store == nil || r.cfg.CacheTTL <= 0 || len(recs) == 0 {
		return
	}
	raw, err := json.Marshal(cachedEntry{TopN: topN, Recs: recs})
	if err != nil {
		return
	}
	if err := r.cfg.Store.Set(ctx, recCacheKey(userID), raw, r.cfg.CacheTTL); err != nil {
		r.logger.Warn("recommendation cache write failed", "user_id", userID, "err", err)
	}
}

func (r *Recommender) invalidateRecs(ctx context.Context, userID int64) {
	if r.cfg.Store == nil || r.cfg.CacheTTL <= 0 {
		return
	}
	if err := r.cfg.Store.Delete(ctx, recCacheKey(userID)); err != nil {
		r.logger.Warn("recommendation cache invalidation failed", "user_id", userID, "err", err)
	}
}
