// Package movierec 是一个混合式电影推荐引擎。
//
// 设计要点：
// - Pipeline-first: 推荐逻辑拆成 Node 链（Recall → Filter → Rank → ReRank → Feedback）
// - 多信号融合: 协同过滤预测分、内容相似度、时效加权按固定权重融合
// - 在线学习: 持久化的 TD(0) Q 值把用户反馈叠加进最终排序
// - 公平性: 独立的公平性指标与流行度惩罚重排档位
package movierec

import "github.com/rushteam/movierec/pipeline"

// 轻量 facade：便于用户直接 import "movierec" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall   = pipeline.KindRecall
	KindFilter   = pipeline.KindFilter
	KindRank     = pipeline.KindRank
	KindReRank   = pipeline.KindReRank
	KindFeedback = pipeline.KindFeedback
)
