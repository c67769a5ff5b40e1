package core

import "context"

// 本文件定义推荐链路依赖的外部协作方接口。
// 模型训练、embedding 构建、数据装载均在本仓库范围之外；
// 领域层只约定契约，由接入方提供实现。

// RatingPredictor 是评分预测模型的领域接口（协同过滤/神经网络均可）。
// 模型训练完成后只读，Predict 可以被多 goroutine 并发调用。
type RatingPredictor interface {
	// Predict 返回 (user, movie) 的预测相关性分。
	// 单个影片预测失败返回 error，由调用方跳过并记日志；
	// 模型整体未加载时应返回 ErrPredictorUnavailable（或 Ready 返回 false），
	// Orchestrator 据此退回 trending 兜底。
	Predict(ctx context.Context, userID, movieID int64) (float64, error)

	// Ready 报告模型是否已加载可用
	Ready(ctx context.Context) bool
}

// SimilarMovie 是相似度索引的单条返回。
type SimilarMovie struct {
	MovieID int64
	Score   float64
}

// SimilarityIndex 是内容相似度索引的领域接口。构建完成后只读，无锁并发读。
type SimilarityIndex interface {
	// TopSimilar 返回与 movieID 最相似的 n 部影片（按相似度降序）。
	// 未知影片返回空列表，不返回错误。
	TopSimilar(ctx context.Context, movieID int64, n int) ([]SimilarMovie, error)
}

// MovieCatalog 是影片目录的领域接口。
type MovieCatalog interface {
	// Get 按 ID 取影片元数据；不存在时返回 ErrMovieNotFound
	Get(ctx context.Context, movieID int64) (*Movie, error)

	// All 返回全量目录（候选生成阶段遍历）
	All(ctx context.Context) ([]*Movie, error)
}

// TrendingEntry 是热门榜的单条返回。
type TrendingEntry struct {
	MovieID int64
	Title   string
	Score   float64
}

// TrendingProvider 提供热门/流行榜单，用于冷启动与模型不可用时的兜底。
type TrendingProvider interface {
	Trending(ctx context.Context, n int) ([]TrendingEntry, error)
}

// RatingHistory 提供用户历史评分信息，用于冷启动判定与已看过滤。
type RatingHistory interface {
	// RatingCount 返回用户的历史评分条数
	RatingCount(ctx context.Context, userID int64) (int, error)
}
