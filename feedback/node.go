package feedback

import (
	"context"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pipeline"
)

// RewardsParam 是 RecommendContext.Params 中在线反馈批次的 key，
// 类型为 map[int64]float64（movie id -> reward）。
const RewardsParam = "feedback_rewards"

// Node 是 Pipeline 的反馈阶段：对重排后的候选批量应用 Q 更新，
// 写 FinalScore 并完成最终排序。
type Node struct {
	Agent *Agent
}

func (n *Node) Name() string        { return "feedback.agent" }
func (n *Node) Kind() pipeline.Kind { return pipeline.KindFeedback }

func (n *Node) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.Agent == nil || rctx == nil || len(items) == 0 {
		return items, nil
	}

	var rewards map[int64]float64
	if m, ok := rctx.Params[RewardsParam].(map[int64]float64); ok {
		rewards = m
	}

	return n.Agent.Adjust(ctx, rctx.UserID, items, rewards), nil
}
