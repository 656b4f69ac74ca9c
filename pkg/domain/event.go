package domain

import (
	"strings"
	"time"
)

// Source names of the two upstream calendars.
const (
	SourceMain      = "main"
	SourceExtension = "extension"
)

const (
	// CategoryAll disables category filtering.
	CategoryAll = "all"
	// DefaultCategory is assigned when an event carries no taxonomy tags.
	DefaultCategory = "Other"
)

type ExperienceMode string

const (
	ExperienceInPerson ExperienceMode = "in_person"
	ExperienceVirtual  ExperienceMode = "virtual"
	ExperienceHybrid   ExperienceMode = "hybrid"
)

// Event is the canonical, display-ready form of an upstream listing.
// RawDate is the instant used for every ordering and date filter; Date and
// Time are labels derived from it.
type Event struct {
	ID              int64          `json:"id"`
	Source          string         `json:"source"`
	Title           string         `json:"title"`
	Location        string         `json:"location"`
	Cost            string         `json:"cost"`
	Date            string         `json:"date"`
	Time            string         `json:"time"`
	RawDate         time.Time      `json:"raw_date"`
	Description     string         `json:"description"`
	Experience      ExperienceMode `json:"experience,omitempty"`
	Category        string         `json:"category"`
	Ranking         int            `json:"ranking"`
	AttendanceCount int            `json:"attendance_count"`
	PopularityScore int            `json:"popularity_score"`
	URL             string         `json:"url,omitempty"`
	PhotoURL        string         `json:"photo_url,omitempty"`
	TicketURL       string         `json:"ticket_url,omitempty"`
}

type DateFilter string

const (
	DateAll      DateFilter = "all"
	DateToday    DateFilter = "today"
	DateUpcoming DateFilter = "upcoming"
)

// ParseDateFilter maps a user supplied mode to a DateFilter. An empty string
// means DateAll.
func ParseDateFilter(s string) (DateFilter, error) {
	switch DateFilter(strings.ToLower(strings.TrimSpace(s))) {
	case "", DateAll:
		return DateAll, nil
	case DateToday:
		return DateToday, nil
	case DateUpcoming:
		return DateUpcoming, nil
	}
	return "", ValidationError{Field: "date", Message: "must be one of all, today, upcoming"}
}

// IDSet is a set of event ids, typically the events a caller already shows.
type IDSet map[int64]struct{}

func IDsOf(events []Event) IDSet {
	set := make(IDSet, len(events))
	for _, e := range events {
		set[e.ID] = struct{}{}
	}
	return set
}

func NewIDSet(ids ...int64) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether id is in the set. A nil set contains nothing.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

type EventPage struct {
	Events   []Event `json:"events"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Total    int     `json:"total"`
	HasNext  bool    `json:"has_next"`
}

type SourceStatus struct {
	Name         string `json:"name"`
	Ceiling      int    `json:"ceiling"`
	FetchedPages []int  `json:"fetched_pages"`
}

type FeedStatus struct {
	CachedEvents   int            `json:"cached_events"`
	FetchedAt      *time.Time     `json:"fetched_at,omitempty"`
	HasMore        bool           `json:"has_more"`
	RemainingCount int            `json:"remaining_estimate"`
	Sources        []SourceStatus `json:"sources"`
}
