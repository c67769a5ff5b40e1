// Package config 提供配置驱动的 Pipeline 装配：把 YAML/JSON 里的 node
// 列表翻译成实际的 Node 链。外部协作方（模型、目录、索引、存储）无法
// 从配置构造，由 Deps 注入后被各 builder 闭包引用。
package config

import (
	"fmt"
	"log/slog"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/fairness"
	"github.com/rushteam/movierec/feedback"
	"github.com/rushteam/movierec/filter"
	"github.com/rushteam/movierec/pipeline"
	"github.com/rushteam/movierec/pkg/conv"
	"github.com/rushteam/movierec/rank"
	"github.com/rushteam/movierec/recall"
	"github.com/rushteam/movierec/rerank"
)

// Deps 是配置无法表达的运行时依赖。
type Deps struct {
	Predictor core.RatingPredictor
	Catalog   core.MovieCatalog
	Index     core.SimilarityIndex
	Store     core.KeyValueStore
	Trending  core.TrendingProvider
	Agent     *feedback.Agent
	Logger    *slog.Logger
}

// Factory 返回注册了全部内置 Node 的工厂。
func Factory(deps Deps) *pipeline.NodeFactory {
	f := pipeline.NewNodeFactory()

	f.Register("recall.cf", func(cfg map[string]any) (pipeline.Node, error) {
		if deps.Predictor == nil || deps.Catalog == nil {
			return nil, fmt.Errorf("recall.cf requires predictor and catalog")
		}
		return &recall.CF{
			Predictor: deps.Predictor,
			Catalog:   deps.Catalog,
			Headroom:  int(conv.ConfigGetInt64(cfg, "headroom", 0)),
			Logger:    deps.Logger,
		}, nil
	})

	f.Register("recall.trending", func(cfg map[string]any) (pipeline.Node, error) {
		return &recall.Trending{
			Store:    deps.Store,
			Key:      conv.ConfigGet[string](cfg, "key", ""),
			Catalog:  deps.Catalog,
			Provider: deps.Trending,
			Logger:   deps.Logger,
		}, nil
	})

	f.Register("filter", func(cfg map[string]any) (pipeline.Node, error) {
		filtersConfig, ok := cfg["filters"].([]any)
		if !ok {
			return nil, fmt.Errorf("filters not found or invalid")
		}

		filters := make([]filter.Filter, 0, len(filtersConfig))
		for _, fc := range filtersConfig {
			filterMap, ok := fc.(map[string]any)
			if !ok {
				continue
			}
			switch filterType := conv.ConfigGet[string](filterMap, "type", ""); filterType {
			case "seen":
				prefix := conv.ConfigGet[string](filterMap, "key_prefix", "")
				filters = append(filters, filter.NewSeenFilter(deps.Store, prefix))
			case "rule":
				expr := conv.ConfigGet[string](filterMap, "expr", "")
				rf, err := filter.NewRuleFilter(expr)
				if err != nil {
					return nil, err
				}
				filters = append(filters, rf)
			default:
				return nil, fmt.Errorf("unknown filter type: %s", filterType)
			}
		}
		return &filter.FilterNode{Filters: filters}, nil
	})

	f.Register("rank.temporal", func(cfg map[string]any) (pipeline.Node, error) {
		return &rank.Temporal{
			RecentWindow: int(conv.ConfigGetInt64(cfg, "recent_window", 0)),
			Boost:        conv.ConfigGetFloat64(cfg, "boost", 0),
		}, nil
	})

	f.Register("rank.fusion", func(cfg map[string]any) (pipeline.Node, error) {
		return &rank.Fusion{Index: deps.Index, Logger: deps.Logger}, nil
	})

	f.Register("rerank.diversity", func(cfg map[string]any) (pipeline.Node, error) {
		return &rerank.Diversity{}, nil
	})

	f.Register("rerank.fairness", func(cfg map[string]any) (pipeline.Node, error) {
		return &fairness.Node{
			Store:  deps.Store,
			Key:    conv.ConfigGet[string](cfg, "key", ""),
			Alpha:  conv.ConfigGetFloat64(cfg, "alpha", 0),
			Beta:   conv.ConfigGetFloat64(cfg, "beta", 0),
			Logger: deps.Logger,
		}, nil
	})

	f.Register("rerank.topn", func(cfg map[string]any) (pipeline.Node, error) {
		return &rerank.TopN{N: int(conv.ConfigGetInt64(cfg, "n", 0))}, nil
	})

	f.Register("feedback.agent", func(cfg map[string]any) (pipeline.Node, error) {
		agent := deps.Agent
		if agent == nil {
			if deps.Store == nil {
				return nil, fmt.Errorf("feedback.agent requires agent or store")
			}
			opts := []feedback.AgentOption{
				feedback.WithLearningRate(conv.ConfigGetFloat64(cfg, "learning_rate", 0)),
				feedback.WithDiscount(conv.ConfigGetFloat64(cfg, "discount", 0)),
			}
			if deps.Logger != nil {
				opts = append(opts, feedback.WithLogger(deps.Logger))
			}
			agent = feedback.NewAgent(deps.Store, opts...)
		}
		return &feedback.Node{Agent: agent}, nil
	})

	return f
}
