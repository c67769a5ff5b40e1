package recall

import (
	"context"
	"log/slog"
	"sort"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/utils"
)

// CF 是候选生成节点：用评分预测模型对全量目录打分，取 TopK 作为候选。
// K = TopN * Headroom，给下游过滤与重排留出余量。
//
// 单部影片预测失败只跳过并记日志；模型整体不可用时返回
// core.ErrPredictorUnavailable，由 Orchestrator 退回 trending 兜底。
type CF struct {
	Predictor core.RatingPredictor
	Catalog   core.MovieCatalog

	// Headroom 候选余量倍数，默认 2
	Headroom int

	Logger *slog.Logger
}

func (r *CF) Name() string        { return "recall.cf" }
func (r *CF) Kind() pipeline.Kind { return pipeline.KindRecall }

func (r *CF) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

func (r *CF) Recall(
	ctx context.Context,
	rctx *core.RecommendContext,
) ([]*core.Item, error) {
	if r.Predictor == nil || !r.Predictor.Ready(ctx) {
		return nil, core.ErrPredictorUnavailable
	}

	movies, err := r.Catalog.All(ctx)
	if err != nil {
		return nil, err
	}

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := make([]*core.Item, 0, len(movies))
	for _, m := range movies {
		if m == nil {
			continue
		}
		score, err := r.Predictor.Predict(ctx, rctx.UserID, m.ID)
		if err != nil {
			if core.IsUnavailable(err) {
				return nil, err
			}
			logger.Warn("predict failed, skipping movie",
				"user_id", rctx.UserID, "movie_id", m.ID, "err", err)
			continue
		}
		it := core.FromMovie(m)
		it.CFScore = score
		it.PutLabel("recall_source", utils.Label{Value: "cf", Source: "recall"})
		out = append(out, it)
	}

	// CFScore 降序；同分按 ID 升序，保证确定性
	sort.Slice(out, func(i, j int) bool {
		if out[i].CFScore != out[j].CFScore {
			return out[i].CFScore > out[j].CFScore
		}
		return out[i].ID < out[j].ID
	})

	headroom := r.Headroom
	if headroom <= 0 {
		headroom = 2
	}
	if rctx.TopN > 0 && len(out) > rctx.TopN*headroom {
		out = out[:rctx.TopN*headroom]
	}
	return out, nil
}
