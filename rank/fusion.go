package rank

import (
	"context"
	"log/slog"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
)

// 融合权重固定为 0.6 协同 / 0.4 内容，不参与学习。
const (
	CFWeight      = 0.6
	ContentWeight = 0.4
)

// Fusion 把时效加权后的协同分与内容相似度融合为单一分数：
//
//	CombinedScore = 0.6*BoostedScore + 0.4*ContentScore
//
// ContentScore 取相似度索引中该影片最相似一部的相似度；
// 索引中无此影片（如未计算 embedding）时取 0。
// 本节点只写分数，不改变顺序；排序在下游重排阶段完成。
type Fusion struct {
	Index core.SimilarityIndex

	Logger *slog.Logger
}

func (n *Fusion) Name() string        { return "rank.fusion" }
func (n *Fusion) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *Fusion) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for _, it := range items {
		if it == nil {
			continue
		}
		content := 0.0
		if n.Index != nil {
			similar, err := n.Index.TopSimilar(ctx, it.ID, 1)
			switch {
			case err != nil:
				logger.Warn("similarity lookup failed", "movie_id", it.ID, "err", err)
			case len(similar) > 0:
				content = similar[0].Score
			}
		}
		it.ContentScore = content
		it.CombinedScore = CFWeight*it.BoostedScore + ContentWeight*content
	}
	return items, nil
}
