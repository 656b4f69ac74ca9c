package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/yair/eventfeed/pkg/domain"
	"github.com/yair/eventfeed/pkg/metrics"
)

var fixedNow = time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

type mockFeed struct {
	initialFetchFunc       func(ctx context.Context, force bool) ([]domain.Event, error)
	loadMoreFunc           func(ctx context.Context, displayed domain.IDSet) ([]domain.Event, error)
	loadMoreInCategoryFunc func(ctx context.Context, category string, displayed domain.IDSet) ([]domain.Event, error)
	events                 []domain.Event
	hasMore                bool
	remaining              int
	status                 domain.FeedStatus
}

func (m *mockFeed) InitialFetch(ctx context.Context, force bool) ([]domain.Event, error) {
	if m.initialFetchFunc != nil {
		return m.initialFetchFunc(ctx, force)
	}
	return m.events, nil
}

func (m *mockFeed) LoadMore(ctx context.Context, displayed domain.IDSet) ([]domain.Event, error) {
	if m.loadMoreFunc != nil {
		return m.loadMoreFunc(ctx, displayed)
	}
	return nil, nil
}

func (m *mockFeed) LoadMoreInCategory(ctx context.Context, category string, displayed domain.IDSet) ([]domain.Event, error) {
	if m.loadMoreInCategoryFunc != nil {
		return m.loadMoreInCategoryFunc(ctx, category, displayed)
	}
	return nil, nil
}

func (m *mockFeed) HasMoreAvailable() bool    { return m.hasMore }
func (m *mockFeed) RemainingCount() int       { return m.remaining }
func (m *mockFeed) Events() []domain.Event    { return m.events }
func (m *mockFeed) Status() domain.FeedStatus { return m.status }

func (m *mockFeed) Event(id int64) (domain.Event, error) {
	for _, e := range m.events {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.Event{}, domain.ErrEventNotFound
}

func newTestRouter(feed FeedService) *mux.Router {
	handler := NewFeedHandler(feed,
		WithHandlerClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
		WithPageSize(2),
	)
	return NewRouter(handler, metrics.New(nil))
}

func serve(router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeEvents(t *testing.T, rr *httptest.ResponseRecorder) EventsResponse {
	t.Helper()
	var response EventsResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response
}

func sampleEvents() []domain.Event {
	return []domain.Event{
		{ID: 1, Title: "Lecture A", Category: "Lecture", PopularityScore: 5, RawDate: fixedNow.Add(3 * time.Hour)},
		{ID: 2, Title: "Garden Day", Category: "4-H", PopularityScore: 20, RawDate: fixedNow.Add(48 * time.Hour)},
		{ID: 3, Title: "Lecture B", Category: "Lecture", PopularityScore: 10, RawDate: fixedNow.Add(-time.Hour)},
	}
}

func TestFeedHandler_GetEvents(t *testing.T) {
	t.Run("initial view", func(t *testing.T) {
		var capturedForce bool
		feed := &mockFeed{
			initialFetchFunc: func(ctx context.Context, force bool) ([]domain.Event, error) {
				capturedForce = force
				return sampleEvents(), nil
			},
			hasMore:   true,
			remaining: 40,
		}

		rr := serve(newTestRouter(feed), "GET", "/api/events", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if capturedForce {
			t.Error("expected refresh to default to false")
		}

		response := decodeEvents(t, rr)
		if response.Total != 3 || len(response.Events) != 3 {
			t.Errorf("expected 3 events, got %d", response.Total)
		}
		if !response.HasMore || response.RemainingEstimate != 40 {
			t.Errorf("unexpected pagination state: %+v", response)
		}
	})

	t.Run("refresh forces refetch", func(t *testing.T) {
		var capturedForce bool
		feed := &mockFeed{
			initialFetchFunc: func(ctx context.Context, force bool) ([]domain.Event, error) {
				capturedForce = force
				return nil, nil
			},
		}

		rr := serve(newTestRouter(feed), "GET", "/api/events?refresh=true", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !capturedForce {
			t.Error("expected refresh=true to force a refetch")
		}
		if !strings.Contains(rr.Body.String(), `"events":[]`) {
			t.Errorf("expected empty events array, got %s", rr.Body.String())
		}
	})

	t.Run("invalid refresh", func(t *testing.T) {
		rr := serve(newTestRouter(&mockFeed{}), "GET", "/api/events?refresh=maybe", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("no events upstream", func(t *testing.T) {
		feed := &mockFeed{
			initialFetchFunc: func(ctx context.Context, force bool) ([]domain.Event, error) {
				return nil, fmt.Errorf("initial fetch from main and extension: %w", domain.ErrNoEventsFetched)
			},
		}

		rr := serve(newTestRouter(feed), "GET", "/api/events", nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rr.Code)
		}
	})

	t.Run("unexpected error", func(t *testing.T) {
		feed := &mockFeed{
			initialFetchFunc: func(ctx context.Context, force bool) ([]domain.Event, error) {
				return nil, errors.New("boom")
			},
		}

		rr := serve(newTestRouter(feed), "GET", "/api/events", nil)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}

		var response ErrorResponse
		json.NewDecoder(rr.Body).Decode(&response)
		if response.Error != "internal server error" {
			t.Errorf("expected generic error message, got %q", response.Error)
		}
	})
}

func TestFeedHandler_LoadMore(t *testing.T) {
	t.Run("plain load more passes displayed ids", func(t *testing.T) {
		var captured domain.IDSet
		feed := &mockFeed{
			loadMoreFunc: func(ctx context.Context, displayed domain.IDSet) ([]domain.Event, error) {
				captured = displayed
				return []domain.Event{{ID: 9}}, nil
			},
		}

		body := []byte(`{"displayed_ids":[1,2],"category":"all"}`)
		rr := serve(newTestRouter(feed), "POST", "/api/events/more", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if !captured.Has(1) || !captured.Has(2) || len(captured) != 2 {
			t.Errorf("unexpected displayed set: %v", captured)
		}
		if response := decodeEvents(t, rr); response.Total != 1 {
			t.Errorf("expected 1 event, got %d", response.Total)
		}
	})

	t.Run("category uses the bounded search", func(t *testing.T) {
		var capturedCategory string
		feed := &mockFeed{
			loadMoreFunc: func(ctx context.Context, displayed domain.IDSet) ([]domain.Event, error) {
				t.Error("plain load more should not be called")
				return nil, nil
			},
			loadMoreInCategoryFunc: func(ctx context.Context, category string, displayed domain.IDSet) ([]domain.Event, error) {
				capturedCategory = category
				return nil, nil
			},
		}

		rr := serve(newTestRouter(feed), "POST", "/api/events/more", []byte(`{"category":"Lecture"}`))
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if capturedCategory != "Lecture" {
			t.Errorf("expected category Lecture, got %q", capturedCategory)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		called := false
		feed := &mockFeed{
			loadMoreFunc: func(ctx context.Context, displayed domain.IDSet) ([]domain.Event, error) {
				called = true
				return nil, nil
			},
		}

		rr := serve(newTestRouter(feed), "POST", "/api/events/more", nil)
		if rr.Code != http.StatusOK || !called {
			t.Errorf("expected load more with no body to succeed, got %d", rr.Code)
		}
	})

	t.Run("chunked empty body", func(t *testing.T) {
		called := false
		feed := &mockFeed{
			loadMoreFunc: func(ctx context.Context, displayed domain.IDSet) ([]domain.Event, error) {
				called = true
				return nil, nil
			},
		}

		req := httptest.NewRequest("POST", "/api/events/more", strings.NewReader(""))
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
		rr := httptest.NewRecorder()
		newTestRouter(feed).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK || !called {
			t.Errorf("expected chunked empty body to load more, got %d", rr.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := serve(newTestRouter(&mockFeed{}), "POST", "/api/events/more", []byte(`{"displayed_ids":`))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		feed := &mockFeed{
			loadMoreFunc: func(ctx context.Context, displayed domain.IDSet) ([]domain.Event, error) {
				return nil, fmt.Errorf("load more: %w", errors.New("connection reset"))
			},
		}

		rr := serve(newTestRouter(feed), "POST", "/api/events/more", []byte(`{}`))
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})

	t.Run("validation error", func(t *testing.T) {
		feed := &mockFeed{
			loadMoreInCategoryFunc: func(ctx context.Context, category string, displayed domain.IDSet) ([]domain.Event, error) {
				return nil, domain.ValidationError{Field: "category", Message: "is required"}
			},
		}

		rr := serve(newTestRouter(feed), "POST", "/api/events/more", []byte(`{"category":"Lecture"}`))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rr := serve(newTestRouter(&mockFeed{}), "GET", "/api/events/more", nil)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status 405, got %d", rr.Code)
		}
	})
}

func TestFeedHandler_GetView(t *testing.T) {
	feed := &mockFeed{events: sampleEvents()}
	router := newTestRouter(feed)

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantIDs   []int64
		wantTotal int
	}{
		{"chronological default", "/api/events/view", http.StatusOK, []int64{3, 1}, 3},
		{"popular first page", "/api/events/view?popular=true", http.StatusOK, []int64{2, 3}, 3},
		{"second chronological page", "/api/events/view?page=2", http.StatusOK, []int64{2}, 3},
		{"today", "/api/events/view?date=today", http.StatusOK, []int64{3, 1}, 2},
		{"upcoming lectures", "/api/events/view?date=upcoming&category=Lecture", http.StatusOK, []int64{1}, 1},
		{"page size", "/api/events/view?page_size=3", http.StatusOK, []int64{3, 1, 2}, 3},
		{"bad date", "/api/events/view?date=yesterday", http.StatusBadRequest, nil, 0},
		{"bad page", "/api/events/view?page=0", http.StatusBadRequest, nil, 0},
		{"bad popular", "/api/events/view?popular=often", http.StatusBadRequest, nil, 0},
		{"page far past the end", "/api/events/view?page=4611686018427387904", http.StatusOK, []int64{}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(router, "GET", tt.target, nil)
			if rr.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, rr.Code)
			}
			if tt.wantCode != http.StatusOK {
				return
			}

			var page domain.EventPage
			if err := json.NewDecoder(rr.Body).Decode(&page); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if page.Total != tt.wantTotal {
				t.Errorf("expected total %d, got %d", tt.wantTotal, page.Total)
			}
			if len(page.Events) != len(tt.wantIDs) {
				t.Fatalf("expected %d events, got %d", len(tt.wantIDs), len(page.Events))
			}
			for i, id := range tt.wantIDs {
				if page.Events[i].ID != id {
					t.Errorf("position %d: expected id %d, got %d", i, id, page.Events[i].ID)
				}
			}
		})
	}
}

func TestFeedHandler_GetEvent(t *testing.T) {
	router := newTestRouter(&mockFeed{events: sampleEvents()})

	t.Run("cached event", func(t *testing.T) {
		rr := serve(router, "GET", "/api/events/2", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var event domain.Event
		if err := json.NewDecoder(rr.Body).Decode(&event); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if event.Title != "Garden Day" {
			t.Errorf("expected Garden Day, got %q", event.Title)
		}
	})

	t.Run("unknown event", func(t *testing.T) {
		rr := serve(router, "GET", "/api/events/404", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("id out of range", func(t *testing.T) {
		rr := serve(router, "GET", "/api/events/99999999999999999999", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestFeedHandler_GetCategories(t *testing.T) {
	rr := serve(newTestRouter(&mockFeed{events: sampleEvents()}), "GET", "/api/categories", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var response CategoriesResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if strings.Join(response.Categories, ",") != "4-H,Lecture" {
		t.Errorf("unexpected categories: %v", response.Categories)
	}
}

func TestFeedHandler_GetStatus(t *testing.T) {
	feed := &mockFeed{status: domain.FeedStatus{
		CachedEvents:   30,
		HasMore:        true,
		RemainingCount: 820,
		Sources: []domain.SourceStatus{
			{Name: domain.SourceMain, Ceiling: 62, FetchedPages: []int{1, 2}},
		},
	}}

	rr := serve(newTestRouter(feed), "GET", "/api/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var status domain.FeedStatus
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.CachedEvents != 30 || status.RemainingCount != 820 || len(status.Sources) != 1 {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	router := newTestRouter(&mockFeed{})

	rr := serve(router, "GET", "/health", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response: %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(router, "GET", "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected metrics status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "eventfeed_cached_events") {
		t.Error("expected eventfeed_cached_events in metrics output")
	}
}
