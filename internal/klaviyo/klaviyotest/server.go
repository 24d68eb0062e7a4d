// Package klaviyotest provides an in-process fake of the Klaviyo metrics and
// events endpoints for tests.
package klaviyotest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// Event is a fixture event served by the fake.
type Event struct {
	ID        string
	ProfileID string
	MetricID  string
	Datetime  time.Time
	// RawDatetime, when set, is served instead of Datetime in RFC 3339 UTC.
	RawDatetime string
	Properties  map[string]any
}

// Server serves /metrics and /events with JSON:API shaped bodies and
// cursor pagination through links.next.
type Server struct {
	*httptest.Server

	// PageSize overrides the page[size] requested by the client when > 0.
	PageSize int

	mu         sync.Mutex
	metrics    map[string]string
	metricIDs  []string
	events     []Event
	failures   map[failure]bool
	requests   []*http.Request
	metricsErr bool
}

type failure struct {
	profileID string
	page      int
}

var (
	metricFilter  = regexp.MustCompile(`equals\(metric_id,"([^"]*)"\)`)
	profileFilter = regexp.MustCompile(`equals\(profile_id,"([^"]*)"\)`)
)

// NewServer starts a fake. Close it when done.
func NewServer() *Server {
	s := &Server{
		metrics:  map[string]string{},
		failures: map[failure]bool{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/events", s.handleEvents)
	s.Server = httptest.NewServer(mux)
	return s
}

// AddMetric registers a metric definition.
func (s *Server) AddMetric(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.metrics[id]; !ok {
		s.metricIDs = append(s.metricIDs, id)
	}
	s.metrics[id] = name
}

// AddEvents appends events in the order they will be served.
func (s *Server) AddEvents(events ...Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

// FailPage makes the given page (1-based) of a query fail with a 500. An
// empty profileID targets queries without a profile filter.
func (s *Server) FailPage(profileID string, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[failure{profileID: profileID, page: page}] = true
}

// FailMetrics makes the metrics listing fail with a 500.
func (s *Server) FailMetrics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsErr = true
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*http.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// EventRequests counts requests made to the events endpoint.
func (s *Server) EventRequests() int {
	n := 0
	for _, r := range s.Requests() {
		if r.URL.Path == "/events" {
			n++
		}
	}
	return n
}

func (s *Server) record(r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(r.Context()))
	s.mu.Unlock()
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metricsErr {
		http.Error(w, `{"errors":[{"detail":"boom"}]}`, http.StatusInternalServerError)
		return
	}

	data := make([]map[string]any, 0, len(s.metricIDs))
	for _, id := range s.metricIDs {
		data = append(data, map[string]any{
			"type":       "metric",
			"id":         id,
			"attributes": map[string]any{"name": s.metrics[id]},
		})
	}
	writeJSON(w, map[string]any{"data": data})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	q := r.URL.Query()
	filter := q.Get("filter")
	metricID, profileID := "", ""
	if m := metricFilter.FindStringSubmatch(filter); m != nil {
		metricID = m[1]
	}
	if m := profileFilter.FindStringSubmatch(filter); m != nil {
		profileID = m[1]
	}

	size, _ := strconv.Atoi(q.Get("page[size]"))
	if s.PageSize > 0 {
		size = s.PageSize
	}
	if size <= 0 {
		size = 100
	}
	cursor, _ := strconv.Atoi(q.Get("page[cursor]"))
	page := cursor/size + 1

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[failure{profileID: profileID, page: page}] {
		http.Error(w, `{"errors":[{"detail":"upstream failure"}]}`, http.StatusInternalServerError)
		return
	}

	var matched []Event
	for _, e := range s.events {
		if e.MetricID != metricID {
			continue
		}
		if profileID != "" && e.ProfileID != profileID {
			continue
		}
		matched = append(matched, e)
	}

	end := cursor + size
	if end > len(matched) {
		end = len(matched)
	}
	data := make([]map[string]any, 0, size)
	if cursor < len(matched) {
		for _, e := range matched[cursor:end] {
			data = append(data, resource(e))
		}
	}

	var next any
	if end < len(matched) {
		nq := url.Values{}
		nq.Set("filter", filter)
		nq.Set("page[size]", strconv.Itoa(size))
		nq.Set("page[cursor]", strconv.Itoa(end))
		next = s.URL + "/events?" + nq.Encode()
	}
	writeJSON(w, map[string]any{
		"data":  data,
		"links": map[string]any{"self": r.URL.String(), "next": next},
	})
}

func resource(e Event) map[string]any {
	props := e.Properties
	if props == nil {
		props = map[string]any{}
	}
	datetime := e.RawDatetime
	if datetime == "" {
		datetime = e.Datetime.UTC().Format(time.RFC3339)
	}
	return map[string]any{
		"type": "event",
		"id":   e.ID,
		"attributes": map[string]any{
			"datetime":         datetime,
			"event_properties": props,
		},
		"relationships": map[string]any{
			"profile": map[string]any{"data": map[string]any{"type": "profile", "id": e.ProfileID}},
			"metric":  map[string]any{"data": map[string]any{"type": "metric", "id": e.MetricID}},
		},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	_ = json.NewEncoder(w).Encode(v)
}
