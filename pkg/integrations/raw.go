package integrations

// Wire types of the upstream calendar API. Only the normalizer reads them.

type eventsResponse struct {
	Events []eventWrapper `json:"events"`
	Page   PageInfo       `json:"page"`
	Date   DateRange      `json:"date"`
}

type eventWrapper struct {
	Event RawEvent `json:"event"`
}

type PageInfo struct {
	Current int `json:"current"`
	Size    int `json:"size"`
	Total   int `json:"total"`
}

type DateRange struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

// PageEnvelope is one decoded page together with its paging metadata.
type PageEnvelope struct {
	Events []RawEvent
	Page   PageInfo
	Date   DateRange
}

type RawEvent struct {
	ID              int64             `json:"id"`
	Title           string            `json:"title"`
	URL             string            `json:"url"`
	LocalistURL     string            `json:"localist_url"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
	LocationName    string            `json:"location_name"`
	RoomNumber      string            `json:"room_number"`
	Address         string            `json:"address"`
	Experience      string            `json:"experience"`
	Description     string            `json:"description"`
	DescriptionText string            `json:"description_text"`
	TicketCost      *string           `json:"ticket_cost"`
	TicketURL       string            `json:"ticket_url"`
	PhotoURL        string            `json:"photo_url"`
	Instances       []instanceWrapper `json:"event_instances"`
	Filters         Filters           `json:"filters"`
	Custom          CustomFields      `json:"custom_fields"`
}

type instanceWrapper struct {
	Instance EventInstance `json:"event_instance"`
}

type EventInstance struct {
	ID           int64  `json:"id"`
	Start        string `json:"start"`
	End          string `json:"end"`
	AllDay       bool   `json:"all_day"`
	Ranking      int    `json:"ranking"`
	NumAttending int    `json:"num_attending"`
}

// Filters are the taxonomy tag groups attached to an event.
type Filters struct {
	Types           []Tag `json:"event_types"`
	Themes          []Tag `json:"event_theme"`
	ProgramAreas    []Tag `json:"event_program_area"`
	Audiences       []Tag `json:"event_target_audience"`
	AcademicCollege []Tag `json:"event_academic_college"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CustomFields struct {
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

// ScheduleInstances returns the schedule instances in upstream order.
func (e RawEvent) ScheduleInstances() []EventInstance {
	out := make([]EventInstance, 0, len(e.Instances))
	for _, w := range e.Instances {
		out = append(out, w.Instance)
	}
	return out
}

// WithInstances returns a copy of e carrying the given schedule instances.
func (e RawEvent) WithInstances(instances ...EventInstance) RawEvent {
	e.Instances = make([]instanceWrapper, 0, len(instances))
	for _, in := range instances {
		e.Instances = append(e.Instances, instanceWrapper{Instance: in})
	}
	return e
}
