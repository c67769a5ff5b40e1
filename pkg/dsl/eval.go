// Package dsl 基于 CEL (Common Expression Language) 提供候选过滤表达式求值。
// 典型用法是在 filter.RuleFilter 中用配置下发的表达式剔除候选，
// 例如 `item.release_year < 1950` 或 `"Horror" in item.genres`。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/movierec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("rctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Program 是一条编译后的过滤表达式，可被多 goroutine 并发执行。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：item.release_year < 1950 / item.cf_score > 4.0
//   - 集合："Horror" in item.genres
//   - 标签：label.recall_source == "cf"
//   - 逻辑：item.release_year > 0 && item.release_year < 1930
type Program struct {
	expr string
	prg  cel.Program
}

// NewProgram 编译表达式。空表达式视为恒真，调用方需自行决定其语义。
func NewProgram(expr string) (*Program, error) {
	p := &Program{expr: expr}
	if expr == "" {
		return p, nil
	}

	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	p.prg = prg
	return p, nil
}

// Expr 返回原始表达式（用于日志/观测）。
func (p *Program) Expr() string { return p.expr }

// Match 对单个候选执行表达式，返回布尔结果。
// 表达式必须返回布尔值；访问不存在的 key 时 CEL 会返回错误，
// 应使用 `label.key != null` 做存在性检查。
func (p *Program) Match(item *core.Item, rctx *core.RecommendContext) (bool, error) {
	if p.prg == nil {
		return true, nil
	}

	out, _, err := p.prg.Eval(buildInput(item, rctx))
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", p.expr, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q must return boolean, got %T", p.expr, out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(item *core.Item, rctx *core.RecommendContext) map[string]any {
	// label.recall_source 这类顶层访问返回 Label.Value
	labels := make(map[string]any, len(item.Labels))
	for k, v := range item.Labels {
		labels[k] = v.Value
	}

	itemMap := map[string]any{
		"id":             item.ID,
		"title":          item.Title,
		"genres":         item.Genres,
		"release_year":   item.ReleaseYear,
		"cf_score":       item.CFScore,
		"combined_score": item.CombinedScore,
		"labels":         labels,
	}

	rctxMap := map[string]any{}
	if rctx != nil {
		rctxMap["user_id"] = rctx.UserID
		rctxMap["top_n"] = rctx.TopN
		rctxMap["params"] = rctx.Params
	}

	return map[string]any{
		"item":  itemMap,
		"label": labels,
		"rctx":  rctxMap,
	}
}
