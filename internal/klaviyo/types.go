package klaviyo

import (
	"encoding/json"
	"time"
)

// Event is a single metric event as returned by the events endpoint.
type Event struct {
	ID        string
	ProfileID string
	MetricID  string
	Datetime  time.Time
	// RawDatetime is attributes.datetime exactly as the API sent it.
	RawDatetime string
	Properties  Properties
}

// Metric is a metric definition from the metrics listing.
type Metric struct {
	ID   string
	Name string
}

type relationship struct {
	Data *struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (r relationship) id() string {
	if r.Data == nil {
		return ""
	}
	return r.Data.ID
}

// timestamp decodes an RFC 3339 string and keeps the original text.
type timestamp struct {
	t   time.Time
	raw string
}

func (ts *timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	ts.t, ts.raw = t, s
	return nil
}

type eventResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Datetime        timestamp      `json:"datetime"`
		EventProperties map[string]any `json:"event_properties"`
	} `json:"attributes"`
	Relationships struct {
		Profile relationship `json:"profile"`
		Metric  relationship `json:"metric"`
	} `json:"relationships"`
}

func (r eventResource) event() Event {
	return Event{
		ID:          r.ID,
		ProfileID:   r.Relationships.Profile.id(),
		MetricID:    r.Relationships.Metric.id(),
		Datetime:    r.Attributes.Datetime.t,
		RawDatetime: r.Attributes.Datetime.raw,
		Properties:  Properties(r.Attributes.EventProperties),
	}
}

type pageLinks struct {
	Next *string `json:"next"`
}

type eventsPage struct {
	Data  []eventResource `json:"data"`
	Links pageLinks       `json:"links"`
}

type metricsPage struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name string `json:"name"`
		} `json:"attributes"`
	} `json:"data"`
}
