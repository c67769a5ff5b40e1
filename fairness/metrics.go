// Package fairness 提供对最终推荐列表的公平性度量，以及一个用流行度惩罚
// 替代多样性重排的备选重排策略。全部为纯函数：同样的输入永远得到同样的输出。
package fairness

import "math"

// Report 是一组公平性指标。
type Report struct {
	// PopularityBias 推荐列表平均流行度 / 全目录平均流行度。
	// > 1 表示推荐偏向热门内容。
	PopularityBias float64
	// Diversity 推荐影片的平均去重类型数
	Diversity float64
	// ExposureFairness 推荐影片流行度的变异系数（std/mean），
	// 作为曝光是否均匀分布的代理指标
	ExposureFairness float64
}

// Metrics 对最终推荐列表计算全部公平性指标。
// popularity 是全目录的流行度表（movie id -> 评分次数），
// genres 是影片的类型表。
func Metrics(recs []int64, popularity map[int64]float64, genres map[int64][]string) Report {
	return Report{
		PopularityBias:   PopularityBias(recs, popularity),
		Diversity:        DiversityScore(recs, genres),
		ExposureFairness: ExposureFairness(recs, popularity),
	}
}

// PopularityBias 计算推荐列表的流行度偏差：
// mean(popularity[recs]) / mean(popularity[catalog])。
// 推荐影片全部缺失流行度数据，或目录平均流行度为 0 时返回 0。
func PopularityBias(recs []int64, popularity map[int64]float64) float64 {
	recMean, ok := meanPopularity(recs, popularity)
	if !ok {
		return 0
	}

	var catalogSum float64
	if len(popularity) == 0 {
		return 0
	}
	for _, p := range popularity {
		catalogSum += p
	}
	catalogMean := catalogSum / float64(len(popularity))
	if catalogMean == 0 {
		return 0
	}
	return recMean / catalogMean
}

// DiversityScore 计算推荐列表的类型多样性：平均每部影片的去重类型数。
// 所有推荐影片都没有类型数据时返回 0。
func DiversityScore(recs []int64, genres map[int64][]string) float64 {
	var sum float64
	var n int
	for _, id := range recs {
		gs, ok := genres[id]
		if !ok || len(gs) == 0 {
			continue
		}
		uniq := make(map[string]struct{}, len(gs))
		for _, g := range gs {
			uniq[g] = struct{}{}
		}
		sum += float64(len(uniq))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ExposureFairness 计算推荐影片流行度的变异系数 std/mean（样本标准差）。
// 有效数据不足两条或 mean 为 0 时返回 0。
func ExposureFairness(recs []int64, popularity map[int64]float64) float64 {
	vals := make([]float64, 0, len(recs))
	for _, id := range recs {
		if p, ok := popularity[id]; ok {
			vals = append(vals, p)
		}
	}
	if len(vals) < 2 {
		return 0
	}

	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	if mean == 0 {
		return 0
	}

	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(vals)-1))
	return std / mean
}

func meanPopularity(recs []int64, popularity map[int64]float64) (float64, bool) {
	var sum float64
	var n int
	for _, id := range recs {
		if p, ok := popularity[id]; ok {
			sum += p
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
