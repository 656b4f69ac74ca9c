package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/yair/eventfeed/pkg/domain"
	"github.com/yair/eventfeed/pkg/logger"
	"github.com/yair/eventfeed/pkg/metrics"
)

// DefaultLookaheadDays is the day-count horizon sent with every page request.
const DefaultLookaheadDays = 60

// SourceClient fetches raw pages from one upstream calendar.
type SourceClient struct {
	name          string
	baseURL       string
	lookaheadDays int
	pageSize      int
	pageCeiling   int
	userAgent     string
	httpClient    *http.Client
	limiter       *rate.Limiter
	logger        logger.Logger
	metrics       *metrics.Metrics
}

type SourceConfig struct {
	Name          string
	BaseURL       string
	LookaheadDays int
	// PageSize is sent as the pp parameter when positive.
	PageSize int
	// PageCeiling is only used to warn when upstream reports more pages.
	PageCeiling       int
	RequestsPerSecond float64
	Timeout           time.Duration
	UserAgent         string
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

func NewSourceClient(config SourceConfig, log logger.Logger, m *metrics.Metrics) (*SourceClient, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("source name is required")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for source %s", config.Name)
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL for source %s: %w", config.Name, err)
	}
	if config.LookaheadDays <= 0 {
		config.LookaheadDays = DefaultLookaheadDays
	}
	if config.UserAgent == "" {
		config.UserAgent = "eventfeed/1.0"
	}
	if log == nil {
		log = logger.NewNop()
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		// Zero Timeout leaves deadlines to the caller's context.
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &SourceClient{
		name:          config.Name,
		baseURL:       config.BaseURL,
		lookaheadDays: config.LookaheadDays,
		pageSize:      config.PageSize,
		pageCeiling:   config.PageCeiling,
		userAgent:     config.UserAgent,
		httpClient:    httpClient,
		limiter:       rate.NewLimiter(limit, 1),
		logger:        log.With(logger.String("source", config.Name)),
		metrics:       m,
	}, nil
}

func (c *SourceClient) Name() string {
	return c.name
}

// FetchPage returns the raw events of one page. A non-success response or an
// undecodable body yields zero events and a nil error; only transport
// failures are returned.
func (c *SourceClient) FetchPage(ctx context.Context, page int) ([]RawEvent, error) {
	env, err := c.FetchPageEnvelope(ctx, page)
	if err != nil {
		return nil, err
	}
	return env.Events, nil
}

func (c *SourceClient) FetchPageEnvelope(ctx context.Context, page int) (*PageEnvelope, error) {
	if page < 1 {
		return nil, domain.ValidationError{Field: "page", Message: "must be at least 1"}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.RecordPage(c.name, metrics.OutcomeTransport)
		return nil, fmt.Errorf("%s page %d: rate limiter: %w", c.name, page, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("days", strconv.Itoa(c.lookaheadDays))
	if c.pageSize > 0 {
		q.Set("pp", strconv.Itoa(c.pageSize))
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordPage(c.name, metrics.OutcomeTransport)
		return nil, fmt.Errorf("%s page %d: %w", c.name, page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		c.metrics.RecordPage(c.name, metrics.OutcomeNonOK)
		c.logger.Warn("page request returned non-success status",
			logger.Int("page", page),
			logger.Int("status", resp.StatusCode),
		)
		return &PageEnvelope{}, nil
	}

	var body eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.metrics.RecordPage(c.name, metrics.OutcomeDecode)
		c.logger.Warn("failed to decode page", logger.Int("page", page), logger.Error(err))
		return &PageEnvelope{}, nil
	}

	env := &PageEnvelope{
		Events: make([]RawEvent, 0, len(body.Events)),
		Page:   body.Page,
		Date:   body.Date,
	}
	for _, w := range body.Events {
		env.Events = append(env.Events, w.Event)
	}

	if c.pageCeiling > 0 && body.Page.Total > c.pageCeiling {
		c.logger.Warn("upstream reports more pages than the configured ceiling",
			logger.Int("reported_total", body.Page.Total),
			logger.Int("ceiling", c.pageCeiling),
		)
	}

	c.metrics.RecordPage(c.name, metrics.OutcomeOK)
	c.logger.Debug("fetched page",
		logger.Int("page", page),
		logger.Int("events", len(env.Events)),
		logger.Duration("elapsed", time.Since(start)),
	)

	return env, nil
}
