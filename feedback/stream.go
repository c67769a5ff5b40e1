package feedback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/fairness"
	"github.com/rushteam/movierec/filter"
)

// Source 是反馈消息来源（Kafka consumer 等）。
// Next 阻塞直到下一条消息、ctx 取消或流结束（返回 io.EOF）。
// 上游的投递语义为 at-least-once：同一事件可能被重投。
type Source interface {
	Next(ctx context.Context) (*Event, error)
}

// worker 池与重试的默认参数。
const (
	DefaultWorkers     = 5
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// StreamProcessor 用固定大小的 worker 池消费反馈流：
// 每条事件映射为奖励信号驱动 Agent 更新，rate/watch 事件同时维护
// 已看集合，rate 事件维护流行度计数。
//
// 失败处理：每条消息最多尝试 MaxAttempts 次，尝试之间等待固定的
// RetryDelay；重试预算耗尽后丢弃并记日志，绝不无限阻塞 worker 池。
// 行为未知或 ID 非法的消息直接丢弃，不消耗重试预算。
//
// 已知风险：上游 at-least-once 重投（以及失败重试本身）会把同一
// 奖励多次计入 Q 更新；事件没有幂等键可去重，这是记录在案的
// 正确性缺口，此处不做修复。
type StreamProcessor struct {
	Source Source
	Agent  *Agent

	// Store 可选；提供时用于维护已看集合与流行度计数
	Store         core.KeyValueStore
	SeenKeyPrefix string // 默认 filter.DefaultSeenKeyPrefix
	PopularityKey string // 默认 fairness.DefaultPopularityKey

	Workers     int           // 默认 5
	MaxAttempts int           // 默认 3
	RetryDelay  time.Duration // 默认 1s

	Logger *slog.Logger
}

// Run 启动 worker 池并消费 Source 直到流结束或 ctx 取消。
// 退出前 drain：已投递给 worker 的在途消息全部处理完才返回。
func (p *StreamProcessor) Run(ctx context.Context) error {
	if p.Source == nil || p.Agent == nil {
		return core.NewDomainError(core.ModuleFeedback, core.ErrorCodeInvalidInput,
			"feedback: stream processor requires source and agent")
	}

	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := p.logger()

	ch := make(chan *Event)
	var eg errgroup.Group
	for i := 0; i < workers; i++ {
		eg.Go(func() error {
			for ev := range ch {
				p.process(ctx, ev)
			}
			return nil
		})
	}

loop:
	for {
		ev, err := p.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				break
			}
			logger.Warn("feedback source read failed", "err", err)
			select {
			case <-time.After(p.retryDelay()):
			case <-ctx.Done():
				break loop
			}
			continue
		}
		if ev == nil {
			continue
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			break loop
		}
	}

	close(ch)
	return eg.Wait()
}

func (p *StreamProcessor) process(ctx context.Context, ev *Event) {
	logger := p.logger()

	reward, ok := ev.Reward()
	if !ok {
		logger.Warn("malformed feedback event, dropping",
			"user_id", ev.UserID, "movie_id", ev.MovieID, "action", ev.Action)
		return
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := p.handle(ctx, ev, reward)
		if err == nil {
			return
		}
		logger.Warn("feedback event processing failed",
			"user_id", ev.UserID, "movie_id", ev.MovieID,
			"attempt", attempt, "max_attempts", maxAttempts, "err", err)
		if attempt < maxAttempts {
			select {
			case <-time.After(p.retryDelay()):
			case <-ctx.Done():
				return
			}
		}
	}
	logger.Error("retry budget exhausted, dropping feedback event",
		"user_id", ev.UserID, "movie_id", ev.MovieID, "action", ev.Action)
}

func (p *StreamProcessor) handle(ctx context.Context, ev *Event, reward float64) error {
	// 重试会把整条消息重新应用一遍，与上游 at-least-once 重投属于
	// 同一类双重计入风险（见类型注释）
	if _, err := p.Agent.Apply(ctx, ev.UserID, ev.MovieID, reward); err != nil {
		return err
	}

	// 附属表维护尽力而为：失败记日志但不触发整条消息重试
	if p.Store != nil {
		logger := p.logger()
		field := strconv.FormatInt(ev.MovieID, 10)

		if ev.Action == ActionRate || ev.Action == ActionWatch {
			key := filter.SeenKey(p.SeenKeyPrefix, ev.UserID)
			if err := p.Store.HSet(ctx, key, field, []byte("1")); err != nil {
				logger.Warn("seen set update failed", "key", key, "movie_id", ev.MovieID, "err", err)
			}
		}
		if ev.Action == ActionRate {
			key := p.PopularityKey
			if key == "" {
				key = fairness.DefaultPopularityKey
			}
			if _, err := p.Store.HIncrBy(ctx, key, field, 1); err != nil {
				logger.Warn("popularity count update failed", "key", key, "movie_id", ev.MovieID, "err", err)
			}
		}
	}
	return nil
}

func (p *StreamProcessor) retryDelay() time.Duration {
	if p.RetryDelay > 0 {
		return p.RetryDelay
	}
	return DefaultRetryDelay
}

func (p *StreamProcessor) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
