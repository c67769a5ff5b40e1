package core

import "time"

// RecommendContext 承载一次推荐请求的用户与场景信息，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	UserID int64
	// TopN 调用方期望的结果条数；recall 阶段按 TopN 的倍数留出候选余量
	TopN int

	// Now 请求视角下的当前时间，为零值时各节点退回 time.Now()。
	// 测试中固定 Now 可以得到确定性的时效加权结果。
	Now time.Time

	// Params 请求级上下文参数，例如在线反馈批次（feedback_rewards）、
	// 场景标识等。各节点按需读取，不做中心化 schema 约束。
	Params map[string]any
}

// NowYear 返回请求视角下的当前年份。
func (rctx *RecommendContext) NowYear() int {
	if rctx == nil || rctx.Now.IsZero() {
		return time.Now().Year()
	}
	return rctx.Now.Year()
}
