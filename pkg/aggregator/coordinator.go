// Package aggregator owns the session cache and decides which upstream pages
// to fetch for the initial view and for incremental load-more requests.
package aggregator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yair/eventfeed/pkg/domain"
	"github.com/yair/eventfeed/pkg/integrations"
	"github.com/yair/eventfeed/pkg/logger"
	"github.com/yair/eventfeed/pkg/metrics"
	"github.com/yair/eventfeed/pkg/normalizer"
)

// PageFetcher retrieves one raw page from a named source. A page that
// upstream rejects must come back empty with a nil error; only transport
// failures are errors.
type PageFetcher interface {
	Name() string
	FetchPage(ctx context.Context, page int) ([]integrations.RawEvent, error)
}

type Config struct {
	// TTL applies to InitialFetch only; load-more never checks it.
	TTL                  time.Duration
	SampleSize           int
	InitialPages         int
	CategoryAttempts     int
	CategoryTarget       int
	AssumedEventsPerPage int
	// Ceilings maps a source name to its assumed total page count.
	Ceilings map[string]int
}

func DefaultConfig() Config {
	return Config{
		TTL:                  30 * time.Minute,
		SampleSize:           15,
		InitialPages:         2,
		CategoryAttempts:     5,
		CategoryTarget:       10,
		AssumedEventsPerPage: 10,
		Ceilings: map[string]int{
			domain.SourceMain:      62,
			domain.SourceExtension: 23,
		},
	}
}

// Coordinator drives fetching, merging and sampling over one session Cache.
// Every public method holds the same mutex for its whole duration, so batches
// never overlap and page state cannot be raced by concurrent load-more calls.
type Coordinator struct {
	mu         sync.Mutex
	sources    []PageFetcher
	cache      *Cache
	config     Config
	normalizer *normalizer.Normalizer
	now        func() time.Time
	rng        *rand.Rand
	logger     logger.Logger
	metrics    *metrics.Metrics
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithRand injects the randomness used to sample the initial view.
func WithRand(rng *rand.Rand) Option {
	return func(c *Coordinator) { c.rng = rng }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithNormalizer(n *normalizer.Normalizer) Option {
	return func(c *Coordinator) { c.normalizer = n }
}

func New(config Config, main, extension PageFetcher, opts ...Option) (*Coordinator, error) {
	if main == nil || extension == nil {
		return nil, fmt.Errorf("both sources are required")
	}
	if main.Name() == extension.Name() {
		return nil, fmt.Errorf("source names must differ, both are %q", main.Name())
	}

	defaults := DefaultConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.SampleSize <= 0 {
		config.SampleSize = defaults.SampleSize
	}
	if config.InitialPages <= 0 {
		config.InitialPages = defaults.InitialPages
	}
	if config.CategoryAttempts <= 0 {
		config.CategoryAttempts = defaults.CategoryAttempts
	}
	if config.CategoryTarget <= 0 {
		config.CategoryTarget = defaults.CategoryTarget
	}
	if config.AssumedEventsPerPage <= 0 {
		config.AssumedEventsPerPage = defaults.AssumedEventsPerPage
	}

	sources := []PageFetcher{main, extension}
	ceilings := make(map[string]int, len(sources))
	for _, src := range sources {
		ceiling := config.Ceilings[src.Name()]
		if ceiling < 1 {
			return nil, fmt.Errorf("%w: no page ceiling configured for source %q", domain.ErrInvalidRequest, src.Name())
		}
		ceilings[src.Name()] = ceiling
	}
	config.Ceilings = ceilings

	c := &Coordinator{
		sources: sources,
		cache:   NewCache(ceilings),
		config:  config,
		now:     time.Now,
		logger:  logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if c.normalizer == nil {
		c.normalizer = normalizer.New(normalizer.WithClock(c.now))
	}
	c.logger = c.logger.With(logger.String("component", "aggregator"))

	return c, nil
}

// InitialFetch returns a random sample of at most SampleSize events. While the
// cache is younger than TTL and forceRefresh is false the sample is drawn from
// everything cached so far without touching the network. Otherwise the first
// InitialPages pages of both sources are fetched and replace the cache.
func (c *Coordinator) InitialFetch(ctx context.Context, forceRefresh bool) ([]domain.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !forceRefresh && c.cache.Fresh(now, c.config.TTL) {
		c.logger.Debug("serving initial view from cache", logger.Int("cached", c.cache.Len()))
		return c.sample(c.cache.Events()), nil
	}

	var reqs []pageRequest
	for _, src := range c.sources {
		last := min(c.config.InitialPages, c.config.Ceilings[src.Name()])
		for page := 1; page <= last; page++ {
			reqs = append(reqs, pageRequest{source: src, page: page})
		}
	}

	start := time.Now()
	results, batchErr := c.fetchBatch(ctx, reqs)
	c.metrics.ObserveBatch("initial_fetch", time.Since(start))

	var events []domain.Event
	fetched := make(map[string][]int)
	for _, r := range results {
		if r.err != nil {
			c.logger.Warn("page failed during initial fetch",
				logger.String("source", r.source.Name()),
				logger.Int("page", r.page),
				logger.Error(r.err),
			)
			continue
		}
		fetched[r.source.Name()] = append(fetched[r.source.Name()], r.page)
		events = append(events, r.events...)
	}

	if len(events) == 0 {
		if batchErr != nil {
			return nil, fmt.Errorf("initial fetch from %s and %s: %w: %w",
				c.sources[0].Name(), c.sources[1].Name(), domain.ErrNoEventsFetched, batchErr)
		}
		return nil, fmt.Errorf("initial fetch from %s and %s: %w",
			c.sources[0].Name(), c.sources[1].Name(), domain.ErrNoEventsFetched)
	}

	c.cache.Replace(events, fetched, now)
	c.metrics.SetCachedEvents(c.cache.Len())
	c.logger.Info("cache replaced",
		logger.Int("events", c.cache.Len()),
		logger.Bool("forced", forceRefresh),
	)

	return c.sample(c.cache.Events()), nil
}

// LoadMore fetches the next unfetched page of every source that still has
// one, merges the results and returns the newly cached events not already in
// displayed. An empty result with a nil error means nothing is left.
func (c *Coordinator) LoadMore(ctx context.Context, displayed domain.IDSet) ([]domain.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged, _, err := c.advance(ctx, "load_more")
	if err != nil {
		return nil, fmt.Errorf("load more: %w", err)
	}
	return excluding(merged, displayed), nil
}

// LoadMoreInCategory repeats the load-more step up to CategoryAttempts times,
// collecting newly cached events of category that are not in displayed. It
// stops early once CategoryTarget events are collected or no pages remain.
// The category "all" matches every event.
func (c *Coordinator) LoadMoreInCategory(ctx context.Context, category string, displayed domain.IDSet) ([]domain.Event, error) {
	if category == "" {
		return nil, domain.ValidationError{Field: "category", Message: "is required"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	found := []domain.Event{}
	for attempt := 1; attempt <= c.config.CategoryAttempts; attempt++ {
		merged, exhausted, err := c.advance(ctx, "load_more_category")
		if err != nil {
			return nil, fmt.Errorf("load more in category %q (attempt %d): %w", category, attempt, err)
		}
		if exhausted {
			break
		}

		for _, e := range merged {
			if category != domain.CategoryAll && e.Category != category {
				continue
			}
			if displayed.Has(e.ID) {
				continue
			}
			found = append(found, e)
		}

		if len(found) >= c.config.CategoryTarget || !c.hasMore() {
			break
		}
	}

	c.logger.Debug("category search finished",
		logger.String("category", category),
		logger.Int("found", len(found)),
	)
	return found, nil
}

// HasMoreAvailable reports whether any source has pages below its ceiling
// that were not fetched yet.
func (c *Coordinator) HasMoreAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore()
}

// RemainingCount is a rough estimate of events not fetched yet, assuming
// every page holds AssumedEventsPerPage events.
func (c *Coordinator) RemainingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, src := range c.sources {
		if p, ok := c.cache.PageState(src.Name()); ok {
			total += p.Remaining() * c.config.AssumedEventsPerPage
		}
	}
	return total
}

// Events returns a copy of every cached event in merge order.
func (c *Coordinator) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Events()
}

// Event looks up one cached event. It never fetches.
func (c *Coordinator) Event(id int64) (domain.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache.Get(id)
	if !ok {
		return domain.Event{}, fmt.Errorf("event %d: %w", id, domain.ErrEventNotFound)
	}
	return e, nil
}

func (c *Coordinator) Status() domain.FeedStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.FeedStatus{
		CachedEvents: c.cache.Len(),
		HasMore:      c.hasMore(),
	}
	if at, ok := c.cache.FetchedAt(); ok {
		status.FetchedAt = &at
	}
	for _, src := range c.sources {
		p, ok := c.cache.PageState(src.Name())
		if !ok {
			continue
		}
		status.RemainingCount += p.Remaining() * c.config.AssumedEventsPerPage
		status.Sources = append(status.Sources, domain.SourceStatus{
			Name:         src.Name(),
			Ceiling:      p.Ceiling(),
			FetchedPages: p.Pages(),
		})
	}
	return status
}

func (c *Coordinator) hasMore() bool {
	for _, src := range c.sources {
		if p, ok := c.cache.PageState(src.Name()); ok && p.FetchedCount() < p.Ceiling() {
			return true
		}
	}
	return false
}

// advance fetches one next page per non-exhausted source and merges whatever
// succeeded, even when another page of the same step failed. exhausted is true
// when no source had a page left to fetch.
func (c *Coordinator) advance(ctx context.Context, operation string) (merged []domain.Event, exhausted bool, err error) {
	var reqs []pageRequest
	for _, src := range c.sources {
		p, ok := c.cache.PageState(src.Name())
		if !ok {
			continue
		}
		if page := p.NextPage(); page > 0 {
			reqs = append(reqs, pageRequest{source: src, page: page})
		}
	}
	if len(reqs) == 0 {
		return nil, true, nil
	}

	start := time.Now()
	results, batchErr := c.fetchBatch(ctx, reqs)
	c.metrics.ObserveBatch(operation, time.Since(start))

	merged = []domain.Event{}
	for _, r := range results {
		if r.err != nil {
			continue
		}
		c.cache.MarkFetched(r.source.Name(), r.page)
		merged = append(merged, c.cache.Merge(r.events)...)
	}
	c.metrics.SetCachedEvents(c.cache.Len())

	c.logger.Debug("advanced pages",
		logger.String("operation", operation),
		logger.Int("requests", len(reqs)),
		logger.Int("merged", len(merged)),
	)

	return merged, false, batchErr
}

type pageRequest struct {
	source PageFetcher
	page   int
}

type pageResult struct {
	pageRequest
	events []domain.Event
	err    error
}

// fetchBatch issues every request concurrently and waits for all of them.
// Failures do not cancel sibling requests; the first error is returned
// alongside the per-page results in request order.
func (c *Coordinator) fetchBatch(ctx context.Context, reqs []pageRequest) ([]pageResult, error) {
	results := make([]pageResult, len(reqs))

	var g errgroup.Group
	for i, req := range reqs {
		results[i].pageRequest = req
		g.Go(func() error {
			raws, err := req.source.FetchPage(ctx, req.page)
			if err != nil {
				results[i].err = err
				return fmt.Errorf("%s page %d: %w", req.source.Name(), req.page, err)
			}
			results[i].events = c.normalizer.NormalizeAll(raws, req.source.Name())
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

// sample draws up to SampleSize events uniformly from events.
func (c *Coordinator) sample(events []domain.Event) []domain.Event {
	c.rng.Shuffle(len(events), func(i, j int) {
		events[i], events[j] = events[j], events[i]
	})
	if len(events) > c.config.SampleSize {
		events = events[:c.config.SampleSize]
	}
	return events
}

func excluding(events []domain.Event, displayed domain.IDSet) []domain.Event {
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if !displayed.Has(e.ID) {
			out = append(out, e)
		}
	}
	return out
}
