package fairness

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/utils"
)

// DefaultPopularityKey 是流行度计数表（Hash：movie id -> 评分次数）的 key。
const DefaultPopularityKey = "popularity:movies"

// Node 是公平性重排节点，在 Pipeline 中替代 rerank.Diversity 使用：
// 读 CombinedScore，写 DiversityScore，供下游 feedback 阶段继续融合。
// 流行度表从 Store 读取；表缺失时退化为按 CombinedScore 原序。
type Node struct {
	Store core.KeyValueStore
	Key   string // 默认 DefaultPopularityKey

	// Alpha/Beta 重排权重，<= 0 时取 DefaultAlpha/DefaultBeta
	Alpha float64
	Beta  float64

	Logger *slog.Logger
}

func (n *Node) Name() string        { return "rerank.fairness" }
func (n *Node) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *Node) Process(
	ctx context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	alpha := n.Alpha
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	beta := n.Beta
	if beta <= 0 {
		beta = DefaultBeta
	}

	popularity, err := LoadPopularity(ctx, n.Store, n.Key)
	if err != nil {
		logger := n.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("popularity table unavailable, keeping original order", "err", err)
	}

	var maxPop float64
	for _, p := range popularity {
		if p > maxPop {
			maxPop = p
		}
	}

	for _, it := range items {
		if it == nil {
			continue
		}
		it.DiversityScore = it.CombinedScore
		if maxPop > 0 {
			norm := popularity[it.ID] / maxPop
			it.DiversityScore = alpha*it.CombinedScore - beta*norm
			it.PutLabel("fairness_norm_pop", utils.Label{
				Value:  strconv.FormatFloat(norm, 'f', 4, 64),
				Source: "rerank",
			})
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].DiversityScore != items[j].DiversityScore {
			return items[i].DiversityScore > items[j].DiversityScore
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// LoadPopularity 从 Store 的 Hash 读取流行度计数表。
// store 为 nil 时返回空表，不报错。
func LoadPopularity(ctx context.Context, store core.KeyValueStore, key string) (map[int64]float64, error) {
	if store == nil {
		return nil, nil
	}
	if key == "" {
		key = DefaultPopularityKey
	}
	fields, err := store.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]float64, len(fields))
	for field, raw := range fields {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		if v, err := strconv.ParseFloat(string(raw), 64); err == nil {
			out[id] = v
		}
	}
	return out, nil
}
