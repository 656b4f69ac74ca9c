// Package normalizer converts raw upstream records into display-ready
// domain events. Everything here is pure: the only time source is the
// injected clock.
package normalizer

import (
	"strings"
	"time"

	"github.com/yair/eventfeed/pkg/domain"
	"github.com/yair/eventfeed/pkg/integrations"
)

const (
	DefaultMaxDescriptionLength = 200

	DateTBD = "Date TBD"
	TimeTBD = "Time TBD"
	AllDay  = "All Day"
	Free    = "Free"
)

type Normalizer struct {
	now            func() time.Time
	loc            *time.Location
	maxDescription int
}

type Option func(*Normalizer)

// WithClock fixes the reference instant used for labels and the TBD fallback.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithLocation sets the zone that defines the local calendar day.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) { n.loc = loc }
}

func WithMaxDescriptionLength(max int) Option {
	return func(n *Normalizer) { n.maxDescription = max }
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:            time.Now,
		loc:            time.Local,
		maxDescription: DefaultMaxDescriptionLength,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.maxDescription <= 0 {
		n.maxDescription = DefaultMaxDescriptionLength
	}
	return n
}

// Normalize returns nil when raw has no schedule instance; callers drop those.
func (n *Normalizer) Normalize(raw integrations.RawEvent, source string) *domain.Event {
	instances := raw.ScheduleInstances()
	if len(instances) == 0 {
		return nil
	}
	first := instances[0]
	now := n.now()

	event := &domain.Event{
		ID:              raw.ID,
		Source:          source,
		Title:           strings.TrimSpace(raw.Title),
		Location:        LocationLabel(raw),
		Cost:            FormatCost(raw.TicketCost),
		Description:     CleanDescription(descriptionSource(raw), n.maxDescription),
		Experience:      ParseExperience(raw.Experience),
		Category:        DeriveCategory(raw.Filters),
		Ranking:         first.Ranking,
		AttendanceCount: first.NumAttending,
		PopularityScore: PopularityScore(first.NumAttending, first.Ranking),
		URL:             firstNonEmpty(raw.LocalistURL, raw.URL),
		PhotoURL:        raw.PhotoURL,
		TicketURL:       raw.TicketURL,
	}

	start, ok := n.parseStart(first.Start)
	if !ok {
		// Unschedulable events sort as happening now.
		event.RawDate = now
		event.Date = DateTBD
		event.Time = TimeTBD
		return event
	}

	event.RawDate = start
	event.Date = n.DateLabel(start, now)
	if first.AllDay {
		event.Time = AllDay
	} else {
		event.Time = start.In(n.loc).Format("3:04 PM")
	}
	return event
}

// NormalizeAll normalizes raws in order, dropping records without a schedule.
func (n *Normalizer) NormalizeAll(raws []integrations.RawEvent, source string) []domain.Event {
	events := make([]domain.Event, 0, len(raws))
	for _, raw := range raws {
		if e := n.Normalize(raw, source); e != nil {
			events = append(events, *e)
		}
	}
	return events
}

// DateLabel renders "Today", "Tomorrow" or e.g. "Thursday, April 17", adding
// the year only when it differs from now's.
func (n *Normalizer) DateLabel(t, now time.Time) string {
	lt := t.In(n.loc)
	ln := now.In(n.loc)

	if sameDay(lt, ln) {
		return "Today"
	}
	if sameDay(lt, ln.AddDate(0, 0, 1)) {
		return "Tomorrow"
	}

	label := lt.Format("Monday, January 2")
	if lt.Year() != ln.Year() {
		label += lt.Format(", 2006")
	}
	return label
}

func (n *Normalizer) parseStart(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatCost labels absent or empty costs and anything mentioning "free" as
// Free. Mixed strings like "$5, free for students" are labeled Free too.
func FormatCost(cost *string) string {
	if cost == nil || strings.TrimSpace(*cost) == "" {
		return Free
	}
	if strings.Contains(strings.ToLower(*cost), "free") {
		return Free
	}
	return *cost
}

// DeriveCategory takes the first tag of the first non-empty group, checking
// type, theme, program area, audience and academic college in that order.
func DeriveCategory(f integrations.Filters) string {
	groups := [][]integrations.Tag{f.Types, f.Themes, f.ProgramAreas, f.Audiences, f.AcademicCollege}
	for _, group := range groups {
		if len(group) > 0 {
			return group[0].Name
		}
	}
	return domain.DefaultCategory
}

func PopularityScore(attendance, ranking int) int {
	return attendance*2 + ranking
}

func ParseExperience(s string) domain.ExperienceMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inperson", "in_person", "in-person", "in person":
		return domain.ExperienceInPerson
	case "virtual":
		return domain.ExperienceVirtual
	case "hybrid":
		return domain.ExperienceHybrid
	}
	return ""
}

func LocationLabel(raw integrations.RawEvent) string {
	if name := strings.TrimSpace(raw.LocationName); name != "" {
		return name
	}
	if addr := strings.TrimSpace(raw.Address); addr != "" {
		return addr
	}
	if ParseExperience(raw.Experience) == domain.ExperienceVirtual {
		return "Online"
	}
	return "Location TBD"
}

func descriptionSource(raw integrations.RawEvent) string {
	if raw.Description != "" {
		return raw.Description
	}
	return raw.DescriptionText
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
