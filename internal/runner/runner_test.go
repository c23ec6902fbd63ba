package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/archive"
	"github.com/shelfscan/shelfscan/internal/hash/sha256"
	"github.com/shelfscan/shelfscan/internal/normalize"
	"github.com/shelfscan/shelfscan/internal/parser"
	"github.com/shelfscan/shelfscan/internal/pipeline"
	"github.com/shelfscan/shelfscan/internal/progress"
	"github.com/shelfscan/shelfscan/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type fakeIDGen struct{ id string }

func (g fakeIDGen) NewID() (string, error) { return g.id, nil }

type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]pipeline.FetchResult
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) pipeline.FetchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res, ok := f.results[url]; ok {
		res.URL = url
		return res
	}
	return pipeline.FetchResult{
		URL:      url,
		Status:   pipeline.FetchSuccess,
		Body:     []byte("<html/>"),
		Attempts: 1,
	}
}

// stubParser yields canned field sets per page URL, bypassing HTML.
type stubParser struct {
	itemsByURL map[string][]pipeline.RawFieldSet
	err        error
}

func (p *stubParser) Type() string { return "stub" }

func (p *stubParser) Parse(_ []byte, pageURL string, yield func(pipeline.RawFieldSet) bool) error {
	if p.err != nil {
		return p.err
	}
	for _, raw := range p.itemsByURL[pageURL] {
		if !yield(raw) {
			return nil
		}
	}
	return nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(ev progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *captureEmitter) byStage(stage progress.Stage) []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []progress.Event
	for _, ev := range e.events {
		if ev.Stage == stage {
			out = append(out, ev)
		}
	}
	return out
}

type failingStore struct {
	*memory.Store
	err error
}

func (s *failingStore) Upsert(ctx context.Context, rec pipeline.Record) (pipeline.UpsertOutcome, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.Store.Upsert(ctx, rec)
}

func rawItem(title, price, sourceURL string) pipeline.RawFieldSet {
	return pipeline.RawFieldSet{
		SourceURL: sourceURL,
		Fields: map[string]string{
			parser.FieldTitle: title,
			parser.FieldPrice: price,
		},
	}
}

type harness struct {
	runner  *Runner
	store   *memory.Store
	archive *archive.Memory
	emitter *captureEmitter
	parser  *stubParser
	fetcher *fakeFetcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		store:   memory.New(clock),
		archive: archive.NewMemory(),
		emitter: &captureEmitter{},
		parser:  &stubParser{itemsByURL: map[string][]pipeline.RawFieldSet{}},
		fetcher: &fakeFetcher{results: map[string]pipeline.FetchResult{}},
	}
	resolver := func(targetType string) (pipeline.Parser, error) {
		if targetType != "stub" {
			return nil, fmt.Errorf("no parser for target type %q", targetType)
		}
		return h.parser, nil
	}
	h.runner = New(
		h.fetcher,
		normalize.New(sha256.New()),
		h.store,
		resolver,
		h.archive,
		h.emitter,
		clock,
		fakeIDGen{id: "run-0001"},
		Config{Workers: 3},
		zap.NewNop(),
	)
	return h
}

func twoPageTargets() []pipeline.Target {
	return []pipeline.Target{{
		Name: "shop",
		Type: "stub",
		URLs: []string{"http://shop.example/page-1", "http://shop.example/page-2"},
	}}
}

func TestRunStoresAllItems(t *testing.T) {
	h := newHarness(t)
	h.parser.itemsByURL = map[string][]pipeline.RawFieldSet{
		"http://shop.example/page-1": {
			rawItem("The Go Programming Language", "£39.99", "http://shop.example/go"),
			rawItem("Learning SQL", "£24.50", "http://shop.example/sql"),
		},
		"http://shop.example/page-2": {
			rawItem("Designing Data-Intensive Applications", "£44.00", "http://shop.example/ddia"),
		},
	}

	stats, err := h.runner.Run(context.Background(), twoPageTargets())
	require.NoError(t, err)

	assert.Equal(t, "run-0001", stats.RunID)
	assert.Equal(t, pipeline.RunCompleted, stats.State)
	assert.Equal(t, 3, stats.Attempted)
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 3, stats.Created)
	assert.Zero(t, stats.TotalFailed())
	assert.Positive(t, stats.Duration)
	assert.Equal(t, 3, h.store.Len())

	require.Len(t, h.emitter.byStage(progress.StageRunStart), 1)
	require.Len(t, h.emitter.byStage(progress.StageRunDone), 1)
	assert.Len(t, h.emitter.byStage(progress.StagePageFetch), 2)
	assert.Len(t, h.emitter.byStage(progress.StageItemStored), 3)
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.parser.itemsByURL = map[string][]pipeline.RawFieldSet{
		"http://shop.example/page-1": {
			rawItem("The Go Programming Language", "£39.99", "http://shop.example/go"),
			rawItem("Learning SQL", "£24.50", "http://shop.example/sql"),
		},
	}
	targets := twoPageTargets()

	first, err := h.runner.Run(context.Background(), targets)
	require.NoError(t, err)
	require.Equal(t, 2, first.Created)

	second, err := h.runner.Run(context.Background(), targets)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Unchanged)
	assert.Zero(t, second.Created)
	assert.Zero(t, second.Updated)
	assert.Equal(t, 2, h.store.Len())
}

func TestRunCountsUpdateOnPriceChange(t *testing.T) {
	h := newHarness(t)
	h.parser.itemsByURL = map[string][]pipeline.RawFieldSet{
		"http://shop.example/page-1": {
			rawItem("Learning SQL", "£24.50", "http://shop.example/sql"),
		},
	}
	targets := twoPageTargets()

	_, err := h.runner.Run(context.Background(), targets)
	require.NoError(t, err)

	h.parser.itemsByURL["http://shop.example/page-1"][0] =
		rawItem("Learning SQL", "£19.99", "http://shop.example/sql")

	stats, err := h.runner.Run(context.Background(), targets)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, h.store.Len())
}

func TestRunIsolatesValidationFailures(t *testing.T) {
	h := newHarness(t)
	h.parser.itemsByURL = map[string][]pipeline.RawFieldSet{
		"http://shop.example/page-1": {
			rawItem("Learning SQL", "£24.50", "http://shop.example/sql"),
			rawItem("", "£9.99", "http://shop.example/untitled"),
			rawItem("Learning Go", "not a price", "http://shop.example/go"),
		},
	}

	stats, err := h.runner.Run(context.Background(), twoPageTargets())
	require.NoError(t, err)

	assert.Equal(t, pipeline.RunCompleted, stats.State)
	assert.Equal(t, 3, stats.Attempted)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 2, stats.Failed[pipeline.FailValidation])
	assert.Equal(t, 1, h.store.Len())

	failed := h.emitter.byStage(progress.StageItemFailed)
	require.Len(t, failed, 2)
	for _, ev := range failed {
		assert.Equal(t, pipeline.FailValidation, ev.Failure)
		assert.NotEmpty(t, ev.Note)
	}
}

func TestRunSkipsFailedPageAndContinues(t *testing.T) {
	h := newHarness(t)
	h.fetcher.results["http://shop.example/page-1"] = pipeline.FetchResult{
		Status:   pipeline.FetchPermanent,
		Attempts: 1,
		Err:      fmt.Errorf("fetch http://shop.example/page-1: status 404"),
	}
	h.parser.itemsByURL = map[string][]pipeline.RawFieldSet{
		"http://shop.example/page-2": {
			rawItem("Learning SQL", "£24.50", "http://shop.example/sql"),
		},
	}

	stats, err := h.runner.Run(context.Background(), twoPageTargets())
	require.NoError(t, err)

	assert.Equal(t, pipeline.RunCompleted, stats.State)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed[pipeline.FailFetchPermanent])
	assert.Equal(t, 1, h.store.Len())
}

func TestRunArchivesUnparseablePages(t *testing.T) {
	h := newHarness(t)
	h.parser.err = &pipeline.ParseError{
		TargetType: "stub",
		URL:        "http://shop.example/page-1",
		Anchor:     "article.product_pod",
	}

	stats, err := h.runner.Run(context.Background(), []pipeline.Target{{
		Name: "shop",
		Type: "stub",
		URLs: []string{"http://shop.example/page-1"},
	}})
	require.NoError(t, err)

	assert.Equal(t, pipeline.RunCompleted, stats.State)
	assert.Equal(t, 1, stats.Failed[pipeline.FailParse])
	assert.Equal(t, 1, h.archive.Len())
}

func TestRunAbortsWhenStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	h.parser.itemsByURL = map[string][]pipeline.RawFieldSet{
		"http://shop.example/page-1": {
			rawItem("Learning SQL", "£24.50", "http://shop.example/sql"),
		},
	}
	broken := &failingStore{
		Store: h.store,
		err:   fmt.Errorf("%w: connection refused", pipeline.ErrStoreUnavailable),
	}
	h.runner.store = broken

	stats, err := h.runner.Run(context.Background(), twoPageTargets())
	require.Error(t, err)
	require.ErrorIs(t, err, pipeline.ErrStoreUnavailable)
	assert.Equal(t, pipeline.RunAborted, stats.State)
	assert.True(t, IsAborted(err))

	require.Len(t, h.emitter.byStage(progress.StageRunError), 1)
	assert.Empty(t, h.emitter.byStage(progress.StageRunDone))
}

func TestRunHonorsCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := h.runner.Run(ctx, twoPageTargets())
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, pipeline.RunAborted, stats.State)
	assert.True(t, IsAborted(err))
}

func TestRunFailsPageWithUnknownTargetType(t *testing.T) {
	h := newHarness(t)

	stats, err := h.runner.Run(context.Background(), []pipeline.Target{{
		Name: "mystery",
		Type: "auctions",
		URLs: []string{"http://shop.example/page-1"},
	}})
	require.NoError(t, err)

	assert.Equal(t, pipeline.RunCompleted, stats.State)
	assert.Equal(t, 1, stats.Failed[pipeline.FailParse])
}
