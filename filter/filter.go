package filter

import (
	"context"

	"github.com/rushteam/movierec/core"
)

// Filter 判定单个候选是否应被剔除。
// 返回 true 表示过滤掉该候选；返回 error 时该过滤器对此候选不生效
// （过滤失败宁可多推，不中断链路）。
type Filter interface {
	Name() string
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)
}
