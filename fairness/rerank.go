package fairness

import "sort"

// 流行度惩罚重排的默认权重。
const (
	DefaultAlpha = 1.0
	DefaultBeta  = 0.5
)

// ReRank 按流行度惩罚重排推荐列表：
//
//	adjusted = alpha*scores[m] - beta*(popularity[m]/maxPopularity)
//
// 返回按 adjusted 降序排列的影片 ID（同分按 ID 升序）。
// 不在流行度表中的影片视为流行度 0；scores 缺失的影片原始分取 0。
// 流行度表为空（无法归一化）时原样返回。
//
// 本策略是 rerank.Diversity 的替代档位：二者择一使用，不做级联。
func ReRank(recs []int64, scores map[int64]float64, popularity map[int64]float64, alpha, beta float64) []int64 {
	if len(recs) == 0 {
		return recs
	}

	var maxPop float64
	for _, p := range popularity {
		if p > maxPop {
			maxPop = p
		}
	}
	if maxPop == 0 {
		out := make([]int64, len(recs))
		copy(out, recs)
		return out
	}

	adjusted := make(map[int64]float64, len(recs))
	out := make([]int64, len(recs))
	for i, id := range recs {
		out[i] = id
		adjusted[id] = alpha*scores[id] - beta*(popularity[id]/maxPop)
	}

	sort.Slice(out, func(i, j int) bool {
		if adjusted[out[i]] != adjusted[out[j]] {
			return adjusted[out[i]] > adjusted[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
