package klaviyo

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"swaptinsight/internal/telemetry"
)

// PageSize is the page[size] requested from the events endpoint.
const PageSize = 100

// Options configures a Client.
type Options struct {
	BaseURL  string
	APIKey   string
	Revision string
	Timeout  time.Duration
}

// Client talks to the Klaviyo REST API. It performs no retries.
type Client struct {
	baseURL  string
	apiKey   string
	revision string
	timeout  time.Duration
	http     *fasthttp.Client
	log      *zap.Logger
}

func NewClient(opts Options, log *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		revision: opts.Revision,
		timeout:  timeout,
		http: &fasthttp.Client{
			Name:         "swaptinsight",
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		log: log,
	}
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
}

// PageError reports which page of a paginated fetch failed.
type PageError struct {
	Page int
	URL  string
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("events page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// EventsURL builds the first-page URL for events of metricID, optionally
// restricted to one profile.
func (c *Client) EventsURL(metricID, profileID string) string {
	filter := fmt.Sprintf(`equals(metric_id,"%s")`, metricID)
	if profileID != "" {
		filter += fmt.Sprintf(`,equals(profile_id,"%s")`, profileID)
	}
	q := url.Values{}
	q.Set("filter", filter)
	q.Set("page[size]", fmt.Sprint(PageSize))
	return c.baseURL + "/events?" + q.Encode()
}

// ListMetrics returns the first page of metric definitions. Accounts carry
// few metrics, so a single page is enough.
func (c *Client) ListMetrics() ([]Metric, error) {
	metricsURL := c.baseURL + "/metrics"
	c.log.Info("fetching metric ids", zap.String("url", metricsURL))

	var page metricsPage
	if err := c.getJSON(metricsURL, &page); err != nil {
		telemetry.UpstreamPageErrors.WithLabelValues(telemetry.StreamMetrics).Inc()
		return nil, err
	}
	telemetry.UpstreamPages.WithLabelValues(telemetry.StreamMetrics).Inc()

	metrics := make([]Metric, 0, len(page.Data))
	for _, m := range page.Data {
		metrics = append(metrics, Metric{ID: m.ID, Name: m.Attributes.Name})
	}
	return metrics, nil
}

// FetchEvents follows links.next from rawURL until it is exhausted and returns
// every event in page order. When a page fails, the events gathered from the
// earlier pages are returned together with a *PageError; callers decide
// whether the partial result is usable. stream labels logs and counters.
func (c *Client) FetchEvents(rawURL, stream string) ([]Event, error) {
	var events []Event
	page := 0
	next := rawURL
	for next != "" {
		page++
		c.log.Debug("fetching events page", zap.String("stream", stream), zap.Int("page", page), zap.String("url", next))

		var body eventsPage
		if err := c.getJSON(next, &body); err != nil {
			telemetry.UpstreamPageErrors.WithLabelValues(stream).Inc()
			return events, &PageError{Page: page, URL: next, Err: err}
		}
		telemetry.UpstreamPages.WithLabelValues(stream).Inc()

		for _, r := range body.Data {
			events = append(events, r.event())
		}
		next = ""
		if body.Links.Next != nil {
			next = *body.Links.Next
		}
	}
	c.log.Debug("fetched event pages", zap.String("stream", stream), zap.Int("pages", page), zap.Int("events", len(events)))
	return events, nil
}

func (c *Client) getJSON(rawURL string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rawURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Authorization", "Klaviyo-API-Key "+c.apiKey)
	req.Header.Set("revision", c.revision)
	req.Header.Set("accept", "application/vnd.api+json")

	if err := c.http.DoTimeout(req, resp, c.timeout); err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	if sc := resp.StatusCode(); sc < 200 || sc >= 300 {
		body := resp.Body()
		if len(body) > 512 {
			body = body[:512]
		}
		return &StatusError{URL: rawURL, StatusCode: sc, Body: string(body)}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}
