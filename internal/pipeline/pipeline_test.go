package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutlabs/cryptoscout/internal/history"
	"github.com/scoutlabs/cryptoscout/internal/models"
)

type fakeSource struct {
	name  string
	items []models.NewsItem
	err   error
	calls int
}

func (f *fakeSource) FetchItems(ctx context.Context, limit int) ([]models.NewsItem, error) {
	f.calls++
	return f.items, f.err
}

func (f *fakeSource) GetName() string { return f.name }

type fakeClassifier struct {
	fn    func(batch []models.NewsItem) ([]models.AnalyzedItem, error)
	calls int
}

func (f *fakeClassifier) AnalyzeBatch(ctx context.Context, batch []models.NewsItem) ([]models.AnalyzedItem, error) {
	f.calls++
	return f.fn(batch)
}

type fakeSender struct {
	sent []models.AnalyzedItem
	err  error
}

func (f *fakeSender) SendOpportunity(ctx context.Context, item models.AnalyzedItem) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, item)
	return nil
}

// failingSaveStore wraps a real store but refuses to persist.
type failingSaveStore struct {
	*history.Store
}

func (f *failingSaveStore) Save() error { return errors.New("disk full") }

func newStore(t *testing.T) *history.Store {
	t.Helper()
	s := history.New(filepath.Join(t.TempDir(), "history.json"), 7*24*time.Hour)
	s.Load()
	return s
}

// classifyFirstAsOpportunity marks the first item of every batch an
// opportunity and the rest noise.
func classifyFirstAsOpportunity(batch []models.NewsItem) ([]models.AnalyzedItem, error) {
	out := make([]models.AnalyzedItem, 0, len(batch))
	for i, item := range batch {
		analyzed := models.AnalyzedItem{NewsItem: item, IsOpportunity: i == 0}
		if i == 0 {
			analyzed.Analysis = &models.Analysis{
				IsOpportunity:   true,
				OpportunityType: "price movement",
				RiskLevel:       "MEDIUM",
				Explanation:     "Looks significant.",
			}
		}
		out = append(out, analyzed)
	}
	return out, nil
}

func twoItems() []models.NewsItem {
	return []models.NewsItem{
		{Title: "Title A", Link: "http://x/1", Source: "CoinDesk"},
		{Title: "Title B", Link: "http://x/2", Source: "NewsBTC"},
	}
}

func testOptions(store HistoryStore, src models.NewsSource, cls Classifier, snd Sender) Options {
	return Options{
		Sources:         []models.NewsSource{src},
		Classifier:      cls,
		Sender:          snd,
		Store:           store,
		RetryAttempts:   1,
		RetryBaseDelay:  time.Millisecond,
		QuietHoursStart: -1,
		QuietHoursEnd:   -1,
	}
}

func TestEndToEndRun(t *testing.T) {
	store := newStore(t)
	src := &fakeSource{name: "fake", items: twoItems()}
	cls := &fakeClassifier{fn: classifyFirstAsOpportunity}
	snd := &fakeSender{}

	p := New(testOptions(store, src, cls, snd))
	require.NoError(t, p.Trigger(context.Background()))

	// Both items were analyzed, so both are recorded, even though only one
	// was an opportunity.
	assert.Equal(t, 2, store.Len())
	require.Len(t, snd.sent, 1)
	assert.Equal(t, "Title A", snd.sent[0].Title)
	assert.Equal(t, 0, p.ConsecutiveErrors())
}

func TestSecondRunSkipsClassifier(t *testing.T) {
	store := newStore(t)
	src := &fakeSource{name: "fake", items: twoItems()}
	cls := &fakeClassifier{fn: classifyFirstAsOpportunity}
	snd := &fakeSender{}

	p := New(testOptions(store, src, cls, snd))
	require.NoError(t, p.Trigger(context.Background()))
	assert.Equal(t, 1, cls.calls)

	// Everything is a duplicate now; the classifier must not run again.
	require.NoError(t, p.Trigger(context.Background()))
	assert.Equal(t, 1, cls.calls)
	assert.Len(t, snd.sent, 1)
}

func TestEmptyFetchIsSuccessfulRun(t *testing.T) {
	store := newStore(t)
	src := &fakeSource{name: "empty"}
	cls := &fakeClassifier{fn: classifyFirstAsOpportunity}

	p := New(testOptions(store, src, cls, &fakeSender{}))
	require.NoError(t, p.Trigger(context.Background()))
	assert.Equal(t, 0, cls.calls)
	assert.Equal(t, 0, store.Len())
}

func TestFailedSourceDoesNotAbortOthers(t *testing.T) {
	store := newStore(t)
	good := &fakeSource{name: "good", items: twoItems()}
	bad := &fakeSource{name: "bad", err: errors.New("connection refused")}
	cls := &fakeClassifier{fn: classifyFirstAsOpportunity}

	opts := testOptions(store, good, cls, &fakeSender{})
	opts.Sources = append(opts.Sources, bad)

	p := New(opts)
	require.NoError(t, p.Trigger(context.Background()))
	assert.Equal(t, 2, store.Len())
}

func TestClassifierBatching(t *testing.T) {
	items := make([]models.NewsItem, 12)
	for i := range items {
		items[i] = models.NewsItem{Title: fmt.Sprintf("T%d", i), Link: fmt.Sprintf("http://x/%d", i)}
	}

	store := newStore(t)
	src := &fakeSource{name: "fake", items: items}
	var sizes []int
	cls := &fakeClassifier{fn: func(batch []models.NewsItem) ([]models.AnalyzedItem, error) {
		sizes = append(sizes, len(batch))
		out := make([]models.AnalyzedItem, len(batch))
		for i, item := range batch {
			out[i] = models.AnalyzedItem{NewsItem: item}
		}
		return out, nil
	}}

	opts := testOptions(store, src, cls, &fakeSender{})
	opts.BatchSize = 5

	p := New(opts)
	require.NoError(t, p.Trigger(context.Background()))
	assert.Equal(t, []int{5, 5, 2}, sizes)
	assert.Equal(t, 12, store.Len())
}

func TestClassifierFailureFailsRunAndRecordsNothing(t *testing.T) {
	store := newStore(t)
	src := &fakeSource{name: "fake", items: twoItems()}
	cls := &fakeClassifier{fn: func(batch []models.NewsItem) ([]models.AnalyzedItem, error) {
		return nil, errors.New("model unavailable")
	}}

	p := New(testOptions(store, src, cls, &fakeSender{}))
	err := p.Trigger(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, p.ConsecutiveErrors())
	// Items never reached recording; they will be retried next run.
	assert.Equal(t, 0, store.Len())
}

func TestSendFailureDoesNotFailRun(t *testing.T) {
	store := newStore(t)
	src := &fakeSource{name: "fake", items: twoItems()}
	cls := &fakeClassifier{fn: classifyFirstAsOpportunity}
	snd := &fakeSender{err: errors.New("telegram down")}

	p := New(testOptions(store, src, cls, snd))
	require.NoError(t, p.Trigger(context.Background()))

	// Analysis still counts even when delivery failed.
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 0, p.ConsecutiveErrors())
}

func TestSaveFailureDoesNotFailRun(t *testing.T) {
	store := &failingSaveStore{Store: newStore(t)}
	src := &fakeSource{name: "fake", items: twoItems()}
	cls := &fakeClassifier{fn: classifyFirstAsOpportunity}

	p := New(testOptions(store, src, cls, &fakeSender{}))
	require.NoError(t, p.Trigger(context.Background()))
	assert.Equal(t, 2, store.Store.Len())
}

func TestConsecutiveErrorCeiling(t *testing.T) {
	store := newStore(t)
	src := &fakeSource{name: "fake", items: twoItems()}
	cls := &fakeClassifier{fn: func(batch []models.NewsItem) ([]models.AnalyzedItem, error) {
		return nil, errors.New("model unavailable")
	}}

	opts := testOptions(store, src, cls, &fakeSender{})
	opts.MaxConsecutiveErrors = 10

	p := New(opts)
	ctx := context.Background()

	for i := 1; i <= 9; i++ {
		err := p.Trigger(ctx)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrShutdown)
		assert.Equal(t, i, p.ConsecutiveErrors())
	}

	// Tenth failure reaches the ceiling.
	assert.ErrorIs(t, p.Trigger(ctx), ErrShutdown)
	assert.True(t, p.IsShutdown())

	// The eleventh trigger is refused without running anything.
	callsBefore := cls.calls
	assert.ErrorIs(t, p.Trigger(ctx), ErrShutdown)
	assert.Equal(t, callsBefore, cls.calls)
	assert.Equal(t, 10, src.calls)
}

func TestCounterResetsOnSuccess(t *testing.T) {
	store := newStore(t)
	src := &fakeSource{name: "fake", items: twoItems()}
	fail := true
	cls := &fakeClassifier{fn: func(batch []models.NewsItem) ([]models.AnalyzedItem, error) {
		if fail {
			return nil, errors.New("model unavailable")
		}
		return classifyFirstAsOpportunity(batch)
	}}

	p := New(testOptions(store, src, cls, &fakeSender{}))
	ctx := context.Background()

	require.Error(t, p.Trigger(ctx))
	assert.Equal(t, 1, p.ConsecutiveErrors())

	fail = false
	require.NoError(t, p.Trigger(ctx))
	assert.Equal(t, 0, p.ConsecutiveErrors())
}

func TestQuietWindow(t *testing.T) {
	tests := []struct {
		name  string
		start int
		end   int
		hour  int
		quiet bool
	}{
		{"inside window", 2, 6, 3, true},
		{"at start", 2, 6, 2, true},
		{"at end is exclusive", 2, 6, 6, false},
		{"outside window", 2, 6, 12, false},
		{"wraps midnight, before", 22, 4, 23, true},
		{"wraps midnight, after", 22, 4, 1, true},
		{"wraps midnight, outside", 22, 4, 12, false},
		{"disabled", -1, -1, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			src := &fakeSource{name: "fake", items: twoItems()}
			cls := &fakeClassifier{fn: classifyFirstAsOpportunity}

			opts := testOptions(store, src, cls, &fakeSender{})
			opts.QuietHoursStart = tt.start
			opts.QuietHoursEnd = tt.end
			opts.Now = func() time.Time {
				return time.Date(2024, 3, 15, tt.hour, 30, 0, 0, time.Local)
			}

			p := New(opts)
			require.NoError(t, p.Trigger(context.Background()))

			if tt.quiet {
				assert.Equal(t, 0, src.calls, "quiet window should skip fetching")
			} else {
				assert.Equal(t, 1, src.calls)
			}
		})
	}
}

func TestHistoryPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	store := history.New(path, 7*24*time.Hour)
	store.Load()
	src := &fakeSource{name: "fake", items: twoItems()}
	cls := &fakeClassifier{fn: classifyFirstAsOpportunity}

	p := New(testOptions(store, src, cls, &fakeSender{}))
	require.NoError(t, p.Trigger(context.Background()))

	// Simulate a restart: fresh store over the same file.
	store2 := history.New(path, 7*24*time.Hour)
	store2.Load()
	cls2 := &fakeClassifier{fn: classifyFirstAsOpportunity}

	p2 := New(testOptions(store2, src, cls2, &fakeSender{}))
	require.NoError(t, p2.Trigger(context.Background()))
	assert.Equal(t, 0, cls2.calls, "restart must not re-analyze persisted items")
}
