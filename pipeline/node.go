package pipeline

import (
	"context"

	"github.com/rushteam/movierec/core"
)

// Kind 用于标记 Node 类型，方便观测/治理/编排（例如按阶段打点）。
type Kind string

const (
	KindRecall   Kind = "recall"   // 候选生成阶段：预测模型打分取 TopK
	KindFilter   Kind = "filter"   // 过滤阶段：剔除已看/规则命中的候选
	KindRank     Kind = "rank"     // 排序阶段：时效加权与内容融合
	KindReRank   Kind = "rerank"   // 重排阶段：多样性/公平性调优与截断
	KindFeedback Kind = "feedback" // 反馈阶段：叠加在线学习的 Q 值
)

// Node 是 Pipeline 的最小可扩展单元。
// 统一采用“输入 items -> 输出 items”的形态，方便候选生成、过滤、重排等操作。
// 各阶段的输出是下一阶段的必需输入，Pipeline 内部永远顺序执行，不做并行。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		items []*core.Item,
	) ([]*core.Item, error)
}
