package aggregator

import (
	"sort"
	"time"

	"github.com/yair/eventfeed/pkg/domain"
)

// PageState tracks which pages of one source have been retrieved. The ceiling
// is fixed at construction and never read back from upstream responses.
type PageState struct {
	ceiling int
	fetched map[int]struct{}
}

func NewPageState(ceiling int) *PageState {
	return &PageState{
		ceiling: ceiling,
		fetched: make(map[int]struct{}),
	}
}

func (p *PageState) Ceiling() int {
	return p.ceiling
}

// NextPage returns the lowest page not yet fetched, or 0 when every page up to
// the ceiling has been.
func (p *PageState) NextPage() int {
	for page := 1; page <= p.ceiling; page++ {
		if _, ok := p.fetched[page]; !ok {
			return page
		}
	}
	return 0
}

func (p *PageState) Mark(page int) {
	if page < 1 || page > p.ceiling {
		return
	}
	p.fetched[page] = struct{}{}
}

func (p *PageState) Has(page int) bool {
	_, ok := p.fetched[page]
	return ok
}

func (p *PageState) FetchedCount() int {
	return len(p.fetched)
}

func (p *PageState) Remaining() int {
	if n := p.ceiling - len(p.fetched); n > 0 {
		return n
	}
	return 0
}

func (p *PageState) Exhausted() bool {
	return p.NextPage() == 0
}

// Pages returns the fetched page numbers in ascending order.
func (p *PageState) Pages() []int {
	pages := make([]int, 0, len(p.fetched))
	for page := range p.fetched {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

// Cache holds every normalized event seen this session plus per-source page
// state. It is not safe for concurrent use; the Coordinator serializes access.
type Cache struct {
	events    []domain.Event
	index     map[int64]int
	fetchedAt time.Time
	loaded    bool
	ceilings  map[string]int
	pages     map[string]*PageState
}

func NewCache(ceilings map[string]int) *Cache {
	c := &Cache{ceilings: make(map[string]int, len(ceilings))}
	for name, ceiling := range ceilings {
		c.ceilings[name] = ceiling
	}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.events = nil
	c.index = make(map[int64]int)
	c.pages = make(map[string]*PageState, len(c.ceilings))
	for name, ceiling := range c.ceilings {
		c.pages[name] = NewPageState(ceiling)
	}
}

// Replace discards all events and page state, then installs events (first
// occurrence of an id wins) and marks the given pages as fetched.
func (c *Cache) Replace(events []domain.Event, fetched map[string][]int, at time.Time) {
	c.reset()
	for source, pages := range fetched {
		for _, page := range pages {
			c.MarkFetched(source, page)
		}
	}
	c.Merge(events)
	c.fetchedAt = at
	c.loaded = true
}

// Merge appends events whose id is not cached yet and returns those it added.
func (c *Cache) Merge(events []domain.Event) []domain.Event {
	added := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if _, ok := c.index[e.ID]; ok {
			continue
		}
		c.index[e.ID] = len(c.events)
		c.events = append(c.events, e)
		added = append(added, e)
	}
	return added
}

func (c *Cache) MarkFetched(source string, page int) {
	if p, ok := c.pages[source]; ok {
		p.Mark(page)
	}
}

func (c *Cache) PageState(source string) (*PageState, bool) {
	p, ok := c.pages[source]
	return p, ok
}

// Events returns a copy of the cached events in insertion order.
func (c *Cache) Events() []domain.Event {
	out := make([]domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Cache) Len() int {
	return len(c.events)
}

func (c *Cache) Has(id int64) bool {
	_, ok := c.index[id]
	return ok
}

func (c *Cache) Get(id int64) (domain.Event, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.Event{}, false
	}
	return c.events[i], true
}

// FetchedAt reports when the cache was last replaced wholesale.
func (c *Cache) FetchedAt() (time.Time, bool) {
	return c.fetchedAt, c.loaded
}

// Fresh reports whether a wholesale load happened less than ttl before now.
// Incremental merges do not refresh it.
func (c *Cache) Fresh(now time.Time, ttl time.Duration) bool {
	return c.loaded && now.Sub(c.fetchedAt) < ttl
}
