package feedback

import (
	"context"
	"io"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/fairness"
	"github.com/rushteam/movierec/filter"
	"github.com/rushteam/movierec/store"
)

// sliceSource 按序弹出事件，耗尽后返回 io.EOF。
type sliceSource struct {
	events []*Event
	pos    int
}

func (s *sliceSource) Next(ctx context.Context) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// flakyStore 让前 failures 次 Set 失败，之后恢复正常。
type flakyStore struct {
	*store.MemoryStore
	failures int32
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInternalError, "store: write failed")
	}
	return f.MemoryStore.Set(ctx, key, value, ttl...)
}

func TestStreamProcessor_Run(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	defer ms.Close()

	agent := NewAgent(ms, WithLearningRate(0.1))
	src := &sliceSource{events: []*Event{
		{UserID: 1, MovieID: 10, Action: ActionRate, Rating: 5},
		{UserID: 1, MovieID: 11, Action: ActionClick},
		{UserID: 2, MovieID: 10, Action: ActionWatch},
	}}

	p := &StreamProcessor{
		Source:     src,
		Agent:      agent,
		Store:      ms,
		RetryDelay: time.Millisecond,
	}
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// 退出前 drain：全部事件的 Q 更新已落盘
	for _, k := range []string{"q:1:10", "q:1:11", "q:2:10"} {
		if _, err := ms.Get(ctx, k); err != nil {
			t.Errorf("Get(%s) error = %v, want stored q-value", k, err)
		}
	}

	// rate/watch 维护已看集合
	if _, err := ms.HGet(ctx, filter.SeenKey("", 1), "10"); err != nil {
		t.Errorf("seen set missing rated movie: %v", err)
	}
	if _, err := ms.HGet(ctx, filter.SeenKey("", 2), "10"); err != nil {
		t.Errorf("seen set missing watched movie: %v", err)
	}
	// click 不进已看集合
	if _, err := ms.HGet(ctx, filter.SeenKey("", 1), "11"); !core.IsNotFound(err) {
		t.Errorf("clicked movie must not enter seen set, err = %v", err)
	}

	// 仅 rate 计入流行度
	raw, err := ms.HGet(ctx, fairness.DefaultPopularityKey, "10")
	if err != nil {
		t.Fatalf("popularity count missing: %v", err)
	}
	if string(raw) != "1" {
		t.Errorf("popularity count = %s, want 1", raw)
	}
	if _, err := ms.HGet(ctx, fairness.DefaultPopularityKey, "11"); !core.IsNotFound(err) {
		t.Errorf("clicked movie must not be counted, err = %v", err)
	}
}

func TestStreamProcessor_MalformedEventDropped(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	defer ms.Close()

	agent := NewAgent(ms)
	src := &sliceSource{events: []*Event{
		{UserID: 0, MovieID: 10, Action: ActionClick}, // 非法 ID
		{UserID: 1, MovieID: 10, Action: "share"},     // 未知行为
		{UserID: 1, MovieID: 10, Action: ActionClick},
	}}

	p := &StreamProcessor{Source: src, Agent: agent, RetryDelay: time.Millisecond}
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := ms.Get(ctx, "q:1:10"); err != nil {
		t.Errorf("valid event not processed: %v", err)
	}
	if _, err := ms.Get(ctx, "q:0:10"); !core.IsNotFound(err) {
		t.Errorf("malformed event must be dropped, err = %v", err)
	}
}

func TestStreamProcessor_RetryThenSucceed(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	defer ms.Close()

	fs := &flakyStore{MemoryStore: ms, failures: 2}
	agent := NewAgent(fs, WithLearningRate(0.1))
	src := &sliceSource{events: []*Event{
		{UserID: 1, MovieID: 10, Action: ActionWatch},
	}}

	p := &StreamProcessor{
		Source:      src,
		Agent:       agent,
		Workers:     1,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// 第三次尝试成功落盘
	if _, err := ms.Get(ctx, "q:1:10"); err != nil {
		t.Errorf("q-value not persisted after retries: %v", err)
	}
}

func TestStreamProcessor_RetryBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	defer ms.Close()

	fs := &flakyStore{MemoryStore: ms, failures: 1000}
	agent := NewAgent(fs)
	src := &sliceSource{events: []*Event{
		{UserID: 1, MovieID: 10, Action: ActionWatch},
		{UserID: 1, MovieID: 11, Action: ActionWatch},
	}}

	p := &StreamProcessor{
		Source:      src,
		Agent:       agent,
		Workers:     1,
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
	}

	// 预算耗尽后丢弃并继续，Run 正常返回而不是卡死
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return, worker pool blocked by failing events")
	}

	for _, movie := range []int64{10, 11} {
		key := "q:1:" + strconv.FormatInt(movie, 10)
		if _, err := ms.Get(ctx, key); !core.IsNotFound(err) {
			t.Errorf("Get(%s) err = %v, want not-found after drop", key, err)
		}
	}
}

func TestStreamProcessor_MissingDeps(t *testing.T) {
	p := &StreamProcessor{}
	if err := p.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want invalid-input error")
	}
}
