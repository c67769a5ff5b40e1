package rerank

import (
	"context"
	"fmt"
	"sort"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/utils"
)

// Diversity 是基于类型（genre）惩罚的贪心重排节点。
//
// 算法（单遍、确定性）：
//  1. 按 CombinedScore 降序排序，同分按 ID 升序（排除平分带来的顺序敏感）
//  2. 按该顺序处理候选：penalty = Π_{g∈genres} 1/(1+count[g])，
//     DiversityScore = CombinedScore * penalty
//  3. 惩罚计算完成后才累加本候选的 genre 计数——排在前面的候选
//     永远看不到后面候选的类型
//  4. 按 DiversityScore 降序重排（同样的平分规则）
//
// penalty ∈ (0, 1]，同一类型出现越多衰减越强；无类型信息的候选 penalty = 1.0。
type Diversity struct{}

func (n *Diversity) Name() string        { return "rerank.diversity" }
func (n *Diversity) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CombinedScore != items[j].CombinedScore {
			return items[i].CombinedScore > items[j].CombinedScore
		}
		return items[i].ID < items[j].ID
	})

	genreCount := make(map[string]int, 16)
	for _, it := range items {
		if it == nil {
			continue
		}
		penalty := 1.0
		for _, g := range it.Genres {
			penalty *= 1.0 / float64(1+genreCount[g])
		}
		it.DiversityScore = it.CombinedScore * penalty
		if penalty < 1.0 {
			it.PutLabel("diversity_penalty", utils.Label{
				Value:  fmt.Sprintf("%.4f", penalty),
				Source: "rerank",
			})
		}
		// 计数后置：本候选的类型只影响后续候选
		for _, g := range it.Genres {
			genreCount[g]++
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
