package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/yair/eventfeed/pkg/domain"
	"github.com/yair/eventfeed/pkg/logger"
	"github.com/yair/eventfeed/pkg/views"
)

// FeedService is the part of the pagination coordinator the HTTP layer uses.
type FeedService interface {
	InitialFetch(ctx context.Context, forceRefresh bool) ([]domain.Event, error)
	LoadMore(ctx context.Context, displayed domain.IDSet) ([]domain.Event, error)
	LoadMoreInCategory(ctx context.Context, category string, displayed domain.IDSet) ([]domain.Event, error)
	HasMoreAvailable() bool
	RemainingCount() int
	Events() []domain.Event
	Event(id int64) (domain.Event, error)
	Status() domain.FeedStatus
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// EventsResponse is returned by the initial view and every load-more call.
type EventsResponse struct {
	Events            []domain.Event `json:"events"`
	Total             int            `json:"total"`
	HasMore           bool           `json:"has_more"`
	RemainingEstimate int            `json:"remaining_estimate"`
}

type LoadMoreRequest struct {
	DisplayedIDs []int64 `json:"displayed_ids"`
	Category     string  `json:"category"`
}

type CategoriesResponse struct {
	Categories []string `json:"categories"`
}

type FeedHandler struct {
	service  FeedService
	logger   logger.Logger
	now      func() time.Time
	location *time.Location
	pageSize int
	timeout  time.Duration
}

type FeedHandlerOption func(*FeedHandler)

func WithHandlerLogger(l logger.Logger) FeedHandlerOption {
	return func(h *FeedHandler) { h.logger = l }
}

func WithHandlerClock(now func() time.Time) FeedHandlerOption {
	return func(h *FeedHandler) { h.now = now }
}

// WithLocation sets the zone that defines "today" for the view endpoint.
func WithLocation(loc *time.Location) FeedHandlerOption {
	return func(h *FeedHandler) { h.location = loc }
}

func WithPageSize(n int) FeedHandlerOption {
	return func(h *FeedHandler) { h.pageSize = n }
}

// WithRequestTimeout bounds every upstream-touching request.
func WithRequestTimeout(d time.Duration) FeedHandlerOption {
	return func(h *FeedHandler) { h.timeout = d }
}

func NewFeedHandler(service FeedService, opts ...FeedHandlerOption) *FeedHandler {
	h := &FeedHandler{
		service:  service,
		logger:   logger.NewNop(),
		now:      time.Now,
		location: time.Local,
		pageSize: views.DefaultPageSize,
		timeout:  60 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *FeedHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/events", h.GetEvents).Methods("GET")
	router.HandleFunc("/api/events/more", h.LoadMore).Methods("POST")
	router.HandleFunc("/api/events/view", h.GetView).Methods("GET")
	router.HandleFunc("/api/events/{id:[0-9]+}", h.GetEvent).Methods("GET")
	router.HandleFunc("/api/categories", h.GetCategories).Methods("GET")
	router.HandleFunc("/api/status", h.GetStatus).Methods("GET")
}

// GetEvents serves the initial sampled view; refresh=true forces a refetch.
func (h *FeedHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	refresh := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "refresh must be a boolean")
			return
		}
		refresh = parsed
	}

	events, err := h.service.InitialFetch(ctx, refresh)
	if err != nil {
		h.handleServiceError(w, "initial fetch", err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, h.eventsResponse(events))
}

// LoadMore advances pagination. A category other than "all" runs the
// bounded category search instead of a single step.
func (h *FeedHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// An absent or empty body, chunked or not, is a plain load-more.
	var req LoadMoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	displayed := domain.NewIDSet(req.DisplayedIDs...)

	var (
		events []domain.Event
		err    error
	)
	if req.Category == "" || req.Category == domain.CategoryAll {
		events, err = h.service.LoadMore(ctx, displayed)
	} else {
		events, err = h.service.LoadMoreInCategory(ctx, req.Category, displayed)
	}
	if err != nil {
		h.handleServiceError(w, "load more", err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, h.eventsResponse(events))
}

// GetView builds a filtered, paged view over everything cached so far.
func (h *FeedHandler) GetView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date, err := domain.ParseDateFilter(q.Get("date"))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := views.Query{
		Date:     date,
		Category: q.Get("category"),
		Page:     1,
		PageSize: h.pageSize,
		Now:      h.now(),
		Location: h.location,
	}

	if v := q.Get("popular"); v != "" {
		popular, err := strconv.ParseBool(v)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, "popular must be a boolean")
			return
		}
		query.Popular = popular
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page <= 0 {
			h.respondWithError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		query.Page = page
	}
	if v := q.Get("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			h.respondWithError(w, http.StatusBadRequest, "page_size must be a positive integer")
			return
		}
		if size > 100 {
			size = 100
		}
		query.PageSize = size
	}

	h.respondWithJSON(w, http.StatusOK, views.Build(h.service.Events(), query))
}

// GetEvent returns one cached event by id.
func (h *FeedHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	event, err := h.service.Event(id)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			h.respondWithError(w, http.StatusNotFound, "event not found")
			return
		}
		h.handleServiceError(w, "get event", err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, event)
}

func (h *FeedHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, CategoriesResponse{
		Categories: views.Categories(h.service.Events()),
	})
}

func (h *FeedHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.service.Status())
}

func (h *FeedHandler) eventsResponse(events []domain.Event) EventsResponse {
	if events == nil {
		events = []domain.Event{}
	}
	return EventsResponse{
		Events:            events,
		Total:             len(events),
		HasMore:           h.service.HasMoreAvailable(),
		RemainingEstimate: h.service.RemainingCount(),
	}
}

func (h *FeedHandler) handleServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		h.respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoEventsFetched):
		h.logger.Warn(op+" returned no events", logger.Error(err))
		h.respondWithError(w, http.StatusServiceUnavailable, "no events available from upstream sources")
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn(op+" timed out", logger.Error(err))
		h.respondWithError(w, http.StatusGatewayTimeout, "upstream request timed out")
	default:
		h.logger.Error(op+" failed", logger.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *FeedHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, ErrorResponse{Error: message})
}

func (h *FeedHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
