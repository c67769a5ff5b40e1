package recall

import (
	"context"
	"strconv"
	"testing"

	"github.com/rushteam/movierec/core"
	"github.com/rushteam/movierec/store"
)

type fakeTrendingProvider struct {
	entries []core.TrendingEntry
}

func (f *fakeTrendingProvider) Trending(_ context.Context, n int) ([]core.TrendingEntry, error) {
	if len(f.entries) > n {
		return f.entries[:n], nil
	}
	return f.entries, nil
}

func TestTrending_FromStore(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	defer ms.Close()

	scores := map[int64]float64{1: 100, 2: 300, 3: 200}
	for id, s := range scores {
		if err := ms.ZAdd(ctx, DefaultTrendingKey, s, strconv.FormatInt(id, 10)); err != nil {
			t.Fatalf("ZAdd() error = %v", err)
		}
	}
	catalog := &fakeCatalog{movies: []*core.Movie{
		{ID: 1, Title: "One"}, {ID: 2, Title: "Two"}, {ID: 3, Title: "Three"},
	}}

	r := &Trending{Store: ms, Catalog: catalog}
	got, err := r.Trending(ctx, 2)
	if err != nil {
		t.Fatalf("Trending() error = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].MovieID != 2 || got[1].MovieID != 3 {
		t.Errorf("order = [%d, %d], want [2, 3]", got[0].MovieID, got[1].MovieID)
	}
	if got[0].Title != "Two" {
		t.Errorf("title = %q, want Two", got[0].Title)
	}
	if got[0].Score != 300 {
		t.Errorf("score = %v, want 300", got[0].Score)
	}
}

func TestTrending_FallbackToProvider(t *testing.T) {
	ms := store.NewMemoryStore()
	defer ms.Close()

	provider := &fakeTrendingProvider{entries: []core.TrendingEntry{
		{MovieID: 7, Title: "Seven", Score: 9.0},
	}}

	r := &Trending{Store: ms, Provider: provider}
	got, err := r.Trending(context.Background(), 5)
	if err != nil {
		t.Fatalf("Trending() error = %v", err)
	}
	if len(got) != 1 || got[0].MovieID != 7 {
		t.Errorf("got %+v, want provider entry for movie 7", got)
	}
}

func TestTrending_NoSources(t *testing.T) {
	r := &Trending{}
	got, err := r.Trending(context.Background(), 5)
	if err != nil {
		t.Fatalf("Trending() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d entries, want 0", len(got))
	}
}

func TestTrending_Process(t *testing.T) {
	provider := &fakeTrendingProvider{entries: []core.TrendingEntry{
		{MovieID: 7, Title: "Seven", Score: 9.0},
		{MovieID: 8, Title: "Eight", Score: 8.0},
	}}

	r := &Trending{Provider: provider}
	got, err := r.Process(context.Background(), &core.RecommendContext{TopN: 5}, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	if got[0].FinalScore != 9.0 {
		t.Errorf("FinalScore = %v, want 9.0", got[0].FinalScore)
	}
	if lbl := got[0].Labels["recall_source"]; lbl.Value != "trending" {
		t.Errorf("recall_source label = %+v, want trending", lbl)
	}
}
