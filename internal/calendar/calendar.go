// Package calendar exposes the studio agenda as opaque busy intervals. Raw
// event titles and details never cross this boundary: neither the model nor
// the customer may see them.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// Interval is one busy span.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BusyProvider lists busy intervals between two instants.
type BusyProvider interface {
	ListBusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error)
}

// Config points at the agenda service's free/busy endpoint.
type Config struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
}

// HTTPProvider queries a free/busy endpoint that returns
// {"busy":[{"start":...,"end":...}]} with RFC3339 timestamps.
type HTTPProvider struct {
	cfg  Config
	http *http.Client
}

// NewHTTPProvider creates a provider.
func NewHTTPProvider(cfg Config) *HTTPProvider {
	return &HTTPProvider{cfg: cfg, http: &http.Client{Timeout: 15 * time.Second}}
}

// ListBusyIntervals fetches busy spans. Only start/end are decoded; event
// titles and other fields in the response are dropped.
func (p *HTTPProvider) ListBusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error) {
	q := url.Values{}
	q.Set("from", from.Format(time.RFC3339))
	q.Set("to", to.Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/freebusy?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create freebusy request: %w", err)
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("freebusy request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("freebusy request: status %d", resp.StatusCode)
	}

	var body struct {
		Busy []Interval `json:"busy"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode freebusy response: %w", err)
	}
	return body.Busy, nil
}

// Merge normalizes overlapping or adjacent busy intervals into a sorted,
// disjoint set.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// FreeWithin returns the free gaps inside [from, to) given busy intervals.
// This is the only availability shape the orchestrator may describe.
func FreeWithin(from, to time.Time, busy []Interval) []Interval {
	merged := Merge(busy)
	var free []Interval
	cursor := from
	for _, iv := range merged {
		if iv.End.Before(from) || iv.Start.After(to) {
			continue
		}
		if iv.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: iv.Start})
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if cursor.Before(to) {
		free = append(free, Interval{Start: cursor, End: to})
	}
	return free
}
