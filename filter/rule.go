package filter

import (
	"context"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/pkg/dsl"
)

// RuleFilter 用 CEL 表达式剔除候选，表达式命中即过滤。
// 典型用途是配置下发的业务规则，例如：
//
//	item.release_year > 0 && item.release_year < 1930
//	"Documentary" in item.genres
type RuleFilter struct {
	prg *dsl.Program
}

// NewRuleFilter 编译表达式，表达式非法时返回错误。
func NewRuleFilter(expr string) (*RuleFilter, error) {
	prg, err := dsl.NewProgram(expr)
	if err != nil {
		return nil, err
	}
	return &RuleFilter{prg: prg}, nil
}

func (f *RuleFilter) Name() string { return "filter.rule" }

func (f *RuleFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if f.prg == nil || f.prg.Expr() == "" {
		return false, nil
	}
	return f.prg.Match(item, rctx)
}
