package feedback

// Action 是反馈事件的行为类型。
type Action string

const (
	ActionRate  Action = "rate"  // 打分
	ActionClick Action = "click" // 点击
	ActionWatch Action = "watch" // 观看完成
)

// Event 是上游行为流的单条反馈事件。消费一次即弃，不持久化；
// 学习信号全部沉淀在 Agent 的 Q 值里。
type Event struct {
	UserID    int64   `json:"user_id"`
	MovieID   int64   `json:"movie_id"`
	Action    Action  `json:"action"`
	Rating    float64 `json:"rating,omitempty"` // 仅 action == rate 时有效（1~5 星）
	Timestamp int64   `json:"timestamp"`        // Unix 秒
}

// Reward 把行为映射为奖励信号：
//   - rate:  (rating-3)/2，把 1~5 星线性映射到 [-1, 1]
//   - watch: 1.0
//   - click: 0.5
//
// 未知行为或非法 ID 返回 ok=false，调用方应丢弃该事件（不重试）。
func (e *Event) Reward() (reward float64, ok bool) {
	if e == nil || e.UserID <= 0 || e.MovieID <= 0 {
		return 0, false
	}
	switch e.Action {
	case ActionRate:
		return (e.Rating - 3) / 2, true
	case ActionWatch:
		return 1.0, true
	case ActionClick:
		return 0.5, true
	default:
		return 0, false
	}
}
