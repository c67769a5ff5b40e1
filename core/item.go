package core

import "github.com/rushteam/movierec/pkg/utils"

// Movie 是目录中的影片元数据，由 Catalog 持有，推荐链路只读。
// ReleaseYear 为 0 表示发行年份缺失或无法解析。
type Movie struct {
	ID          int64
	Title       string
	Genres      []string
	ReleaseYear int
}

// Item 是推荐链路中的统一承载结构：每个阶段写入自己的分数字段，
// 全链路保留各阶段分数，便于解释与观测。
// Item 在每次请求中新建，不跨请求持久化。
type Item struct {
	ID          int64
	Title       string
	Genres      []string
	ReleaseYear int

	// CFScore 协同过滤模型的原始预测分（recall 阶段写入）
	CFScore float64
	// BoostedScore 时效加权后的分数（rank.temporal 写入）
	BoostedScore float64
	// ContentScore 内容相似度分（rank.fusion 写入）
	ContentScore float64
	// CombinedScore 协同分与内容分的融合分（rank.fusion 写入）
	CombinedScore float64
	// DiversityScore 多样性/公平性重排后的分数（rerank 写入）
	DiversityScore float64
	// FinalScore 叠加在线反馈后的最终排序分（feedback 写入）
	FinalScore float64

	Labels map[string]utils.Label
}

func NewItem(id int64) *Item {
	return &Item{
		ID:     id,
		Labels: make(map[string]utils.Label),
	}
}

// FromMovie 基于目录元数据构建 Item。
func FromMovie(m *Movie) *Item {
	it := NewItem(m.ID)
	it.Title = m.Title
	it.Genres = m.Genres
	it.ReleaseYear = m.ReleaseYear
	return it
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// Recommendation 是返回给调用方的最终结果行，按 Score 降序排列。
type Recommendation struct {
	MovieID int64   `json:"movie_id"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
}
