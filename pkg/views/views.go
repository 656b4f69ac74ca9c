// Package views builds filtered, sorted and paged slices over cached events.
// Nothing here performs I/O or mutates its input.
package views

import (
	"sort"
	"time"

	"github.com/yair/eventfeed/pkg/domain"
)

const (
	DefaultPageSize = 15

	// popularPages is how many leading logical pages are ordered by
	// popularity when a popular view is requested.
	popularPages = 2
)

// Query describes one requested view. Now and Location define "today" and
// "upcoming"; a nil Location means time.Local.
type Query struct {
	Date     domain.DateFilter
	Category string
	Popular  bool
	Page     int
	PageSize int
	Now      time.Time
	Location *time.Location
}

// FilterByDate keeps every event for DateAll. DateToday keeps events whose
// instant falls on now's calendar day in loc. DateUpcoming keeps events
// strictly after now. The two predicates overlap for events later today.
func FilterByDate(events []domain.Event, mode domain.DateFilter, now time.Time, loc *time.Location) []domain.Event {
	if loc == nil {
		loc = time.Local
	}

	switch mode {
	case domain.DateToday:
		today := now.In(loc)
		return keep(events, func(e domain.Event) bool {
			return sameDay(e.RawDate.In(loc), today)
		})
	case domain.DateUpcoming:
		return keep(events, func(e domain.Event) bool {
			return e.RawDate.After(now)
		})
	default:
		return clone(events)
	}
}

// FilterByCategory matches category exactly; "all" and "" keep everything.
func FilterByCategory(events []domain.Event, category string) []domain.Event {
	if category == "" || category == domain.CategoryAll {
		return clone(events)
	}
	return keep(events, func(e domain.Event) bool {
		return e.Category == category
	})
}

// Filter applies the date filter, then the category filter.
func Filter(events []domain.Event, q Query) []domain.Event {
	return FilterByCategory(FilterByDate(events, q.Date, q.Now, q.Location), q.Category)
}

// SortByPopularity returns events ordered by descending popularity score.
// Ties keep their input order.
func SortByPopularity(events []domain.Event) []domain.Event {
	out := clone(events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PopularityScore > out[j].PopularityScore
	})
	return out
}

func SortChronological(events []domain.Event) []domain.Event {
	out := clone(events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RawDate.Before(out[j].RawDate)
	})
	return out
}

// Build filters events and returns the requested logical page. When q.Popular
// is set, pages 1 and 2 are cut from the popularity ordering and every later
// page from the chronological one, so an event may appear at different
// positions depending on the page asked for.
func Build(events []domain.Event, q Query) domain.EventPage {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}

	filtered := Filter(events, q)
	var ordered []domain.Event
	if q.Popular && q.Page <= popularPages {
		ordered = SortByPopularity(filtered)
	} else {
		ordered = SortChronological(filtered)
	}

	page := []domain.Event{}
	hasNext := false
	// Pages past the end are empty; checking before multiplying keeps huge
	// page numbers from overflowing the window.
	if q.Page-1 <= len(ordered)/q.PageSize {
		start := (q.Page - 1) * q.PageSize
		end := min(start+q.PageSize, len(ordered))
		if start < len(ordered) {
			page = ordered[start:end]
		}
		hasNext = end < len(ordered)
	}

	return domain.EventPage{
		Events:   page,
		Page:     q.Page,
		PageSize: q.PageSize,
		Total:    len(ordered),
		HasNext:  hasNext,
	}
}

// Categories lists the distinct categories present, sorted.
func Categories(events []domain.Event) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, e := range events {
		if _, ok := seen[e.Category]; ok {
			continue
		}
		seen[e.Category] = struct{}{}
		out = append(out, e.Category)
	}
	sort.Strings(out)
	return out
}

func keep(events []domain.Event, pred func(domain.Event) bool) []domain.Event {
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

func clone(events []domain.Event) []domain.Event {
	out := make([]domain.Event, len(events))
	copy(out, events)
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
