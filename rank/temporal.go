package rank

import (
	"context"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
)

// 时效加权默认值：近 5 年内发行的影片放大 1.1 倍。
const (
	DefaultRecentWindow = 5
	DefaultRecentBoost  = 1.1
)

// Temporal 对近年发行的影片做时效加权：BoostedScore = CFScore * factor。
// 纯函数节点，无副作用；发行年份缺失或无法解析时 factor 恒为 1.0。
type Temporal struct {
	// RecentWindow 判定“近年”的年数窗口，默认 5
	RecentWindow int
	// Boost 窗口内的放大倍数，默认 1.1
	Boost float64
}

func (n *Temporal) Name() string        { return "rank.temporal" }
func (n *Temporal) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *Temporal) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	window := n.RecentWindow
	if window <= 0 {
		window = DefaultRecentWindow
	}
	boost := n.Boost
	if boost <= 0 {
		boost = DefaultRecentBoost
	}

	nowYear := rctx.NowYear()
	for _, it := range items {
		if it == nil {
			continue
		}
		it.BoostedScore = it.CFScore * BoostFactor(it.ReleaseYear, nowYear, window, boost)
	}
	return items, nil
}

// BoostFactor 返回时效加权系数。releaseYear <= 0 视为年份未知，返回 1.0。
func BoostFactor(releaseYear, nowYear, window int, boost float64) float64 {
	if releaseYear <= 0 {
		return 1.0
	}
	if nowYear-releaseYear <= window {
		return boost
	}
	return 1.0
}
