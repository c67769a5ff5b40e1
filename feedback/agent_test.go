package feedback

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/store"
)

func TestAgent_Update(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	defer ms.Close()

	agent := NewAgent(ms, WithLearningRate(0.1), WithDiscount(0.9))

	// Q=0 起步：Q' = 0 + 0.1*(1.0 + 0.9*0 - 0) = 0.1
	got, err := agent.Update(ctx, 1, 2, 1.0, 0)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if math.Abs(got-0.1) > 1e-9 {
		t.Errorf("Update() = %v, want 0.1", got)
	}

	// 带 nextMax 的第二次更新：Q' = 0.1 + 0.1*(1.0 + 0.9*0.1 - 0.1)
	got, err = agent.Update(ctx, 1, 2, 1.0, 0.1)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	want := 0.1 + 0.1*(1.0+0.9*0.1-0.1)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Update() = %v, want %v", got, want)
	}
}

func TestAgent_Q_DefaultZero(t *testing.T) {
	agent := NewAgent(nil)
	if got := agent.Q(context.Background(), 7, 8); got != 0 {
		t.Errorf("Q() = %v, want 0 without history", got)
	}
}

func TestAgent_PersistenceAcrossRestart(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	defer ms.Close()

	first := NewAgent(ms, WithLearningRate(0.1))
	want, err := first.Apply(ctx, 1, 2, 1.0)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	// 新 Agent 共享同一 Store，重启后 Q 值从存储恢复
	second := NewAgent(ms, WithLearningRate(0.1))
	if got := second.Q(ctx, 1, 2); math.Abs(got-want) > 1e-9 {
		t.Errorf("Q() after restart = %v, want %v", got, want)
	}
	// 无关 key 不受影响
	if got := second.Q(ctx, 1, 3); got != 0 {
		t.Errorf("Q() for untouched pair = %v, want 0", got)
	}
}

func TestAgent_ConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	defer ms.Close()

	agent := NewAgent(ms, WithLearningRate(0.5))

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := agent.Apply(ctx, 1, 2, 1.0); err != nil {
				t.Errorf("Apply() error = %v", err)
			}
		}()
	}
	wg.Wait()

	// 同一 key 的读-改-写串行：n 次相同更新后 Q = 1 - 0.5^n。
	// 丢更新会得到更小的值。
	want := 1 - math.Pow(0.5, n)
	if got := agent.Q(ctx, 1, 2); math.Abs(got-want) > 1e-9 {
		t.Errorf("Q() after %d concurrent updates = %v, want %v", n, got, want)
	}
}

func TestAgent_Adjust(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	defer ms.Close()

	agent := NewAgent(ms, WithLearningRate(0.1), WithDiscount(0.9))

	items := []*core.Item{
		{ID: 1, DiversityScore: 1.0},
		{ID: 2, DiversityScore: 0.9},
	}

	got := agent.Adjust(ctx, 5, items, map[int64]float64{2: 1.0})

	// 全部 Q 起步为 0，nextMax = 0：
	//   movie 1: Q = 0,    final = 0.7*1.0
	//   movie 2: Q = 0.1,  final = 0.7*0.9 + 0.3*0.1
	if got[0].ID != 1 {
		t.Fatalf("position 0: got movie %d, want 1", got[0].ID)
	}
	if math.Abs(got[0].FinalScore-0.7) > 1e-9 {
		t.Errorf("movie 1: FinalScore = %v, want 0.7", got[0].FinalScore)
	}
	want2 := 0.7*0.9 + 0.3*0.1
	if math.Abs(got[1].FinalScore-want2) > 1e-9 {
		t.Errorf("movie 2: FinalScore = %v, want %v", got[1].FinalScore, want2)
	}

	// 持续正反馈最终把 movie 2 顶到首位
	for i := 0; i < 50; i++ {
		agent.Adjust(ctx, 5, items, map[int64]float64{2: 1.0})
	}
	if items[0].ID != 2 {
		t.Errorf("after repeated positive feedback, top movie = %d, want 2", items[0].ID)
	}
}

func TestAgent_Adjust_Empty(t *testing.T) {
	agent := NewAgent(nil)
	if got := agent.Adjust(context.Background(), 1, nil, nil); len(got) != 0 {
		t.Errorf("Adjust() = %v items, want 0", len(got))
	}
}

// gatedStore 让第一次 Get 阻塞在 gate 上，用于构造“读取 store 的旧值
// 期间发生并发 Update”的交错。
type gatedStore struct {
	core.Store
	entered chan struct{}
	gate    chan struct{}
	first   int32
}

func (g *gatedStore) Get(ctx context.Context, key string) ([]byte, error) {
	if atomic.CompareAndSwapInt32(&g.first, 0, 1) {
		close(g.entered)
		<-g.gate
	}
	return g.Store.Get(ctx, key)
}

func TestAgent_StaleLoadDoesNotClobberUpdate(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	defer ms.Close()

	// store 里已有旧值 0
	if err := ms.Set(ctx, "q:1:2", []byte("0")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	gs := &gatedStore{Store: ms, entered: make(chan struct{}), gate: make(chan struct{})}
	agent := NewAgent(gs, WithLearningRate(0.1))

	// 读者卡在 store 读取上，缓存尚未回填
	done := make(chan struct{})
	go func() {
		defer close(done)
		agent.Q(ctx, 1, 2)
	}()
	<-gs.entered

	// 读者挂起期间完成一次更新：Q = 0 + 0.1*(1.0-0) = 0.1
	if _, err := agent.Update(ctx, 1, 2, 1.0, 0); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// 放行读者：它带着旧值 0 回来，不得覆盖缓存里的 0.1
	close(gs.gate)
	<-done

	// 第二次更新必须从 0.1 出发：0.1 + 0.1*(1.0-0.1) = 0.19
	got, err := agent.Update(ctx, 1, 2, 1.0, 0)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if math.Abs(got-0.19) > 1e-9 {
		t.Errorf("Q after two serialized updates = %v, want 0.19 (first update erased by stale fill)", got)
	}
}

type failingStore struct {
	core.Store
	fail bool
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	if f.fail {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInternalError, "store: write failed")
	}
	return f.Store.Set(ctx, key, value, ttl...)
}

func TestAgent_Update_PersistFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	defer ms.Close()

	fs := &failingStore{Store: ms, fail: true}
	agent := NewAgent(fs, WithLearningRate(0.1))

	got, err := agent.Apply(ctx, 1, 2, 1.0)
	if err == nil {
		t.Fatal("Apply() error = nil, want persistence error")
	}
	if math.Abs(got-0.1) > 1e-9 {
		t.Errorf("Apply() = %v, want 0.1 even on persist failure", got)
	}
	// 进程存活期间内存值生效
	if q := agent.Q(ctx, 1, 2); math.Abs(q-0.1) > 1e-9 {
		t.Errorf("Q() = %v, want in-memory 0.1", q)
	}
}
