// Package chart fetches a subject's period timeline from the external chart
// service.
package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roach88/nudge/internal/profile"
	"github.com/roach88/nudge/internal/timeline"
)

// BirthData is the chart service input.
type BirthData struct {
	DOB         string               `json:"dob"`
	TOB         string               `json:"tob"`
	POB         string               `json:"pob,omitempty"`
	Coordinates *profile.Coordinates `json:"coordinates,omitempty"`
}

// BirthDataFrom extracts the chart input from a profile.
func BirthDataFrom(p profile.Profile) BirthData {
	return BirthData{DOB: p.DOB, TOB: p.TOB, POB: p.POB, Coordinates: p.Coordinates}
}

// Fetcher returns the period timeline for birth data.
type Fetcher interface {
	Periods(ctx context.Context, birth BirthData) ([]timeline.Period, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, birth BirthData) ([]timeline.Period, error)

// Periods implements Fetcher.
func (f FetcherFunc) Periods(ctx context.Context, birth BirthData) ([]timeline.Period, error) {
	return f(ctx, birth)
}

// Static always returns the same timeline.
type Static []timeline.Period

// Periods implements Fetcher.
func (s Static) Periods(context.Context, BirthData) ([]timeline.Period, error) {
	return []timeline.Period(s), nil
}

// maxBody bounds the response read from the chart service.
const maxBody = 4 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chart service returned %d: %s", e.Code, e.Body)
}

// Client posts birth data to the chart service as JSON and decodes
// {"periods": [...]}.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a client for url. A nil hc uses a client with a 30s timeout.
func NewClient(url string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: url, http: hc}
}

type periodsResponse struct {
	Periods []timeline.Period `json:"periods"`
}

// Periods implements Fetcher.
func (c *Client) Periods(ctx context.Context, birth BirthData) ([]timeline.Period, error) {
	body, err := json.Marshal(birth)
	if err != nil {
		return nil, fmt.Errorf("encode birth data: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chart request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chart request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read chart response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	var out periodsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode chart response: %w", err)
	}
	return out.Periods, nil
}
