// Package calendar integrates with the clinic's external calendar service.
// The core treats it as best-effort: busy intervals gate availability, and
// event publishes are retried out of band when the service is down.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/attenda/clinic-assistant/internal/appointments"
	"github.com/attenda/clinic-assistant/internal/schedule"
	"github.com/attenda/clinic-assistant/pkg/logging"
)

const defaultTimeout = 10 * time.Second

// Client is a thin REST client for the external calendar API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logging.Logger
}

// NewClient creates a calendar client. A non-positive timeout falls back to
// the default.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logging.Logger) *Client {
	if baseURL == "" {
		panic("calendar: base URL required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

type busyIntervalsResponse struct {
	Intervals []struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"intervals"`
}

// BusyIntervals fetches occupied ranges for a resource. Implements
// schedule.BusyIntervalSource.
func (c *Client) BusyIntervals(ctx context.Context, resourceID string, from, to time.Time) ([]schedule.BusyInterval, error) {
	url := fmt.Sprintf("%s/resources/%s/busy?from=%s&to=%s",
		c.baseURL, resourceID,
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("calendar: build busy request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar: busy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("calendar: busy request returned %d: %s", resp.StatusCode, string(body))
	}

	var payload busyIntervalsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("calendar: decode busy response: %w", err)
	}

	intervals := make([]schedule.BusyInterval, 0, len(payload.Intervals))
	for _, iv := range payload.Intervals {
		intervals = append(intervals, schedule.BusyInterval{Start: iv.Start, End: iv.End})
	}
	return intervals, nil
}

type publishEventRequest struct {
	AppointmentID string `json:"appointment_id"`
	ResourceID    string `json:"resource_id"`
	ServiceType   string `json:"service_type"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	SubjectID     string `json:"subject_id"`
}

type publishEventResponse struct {
	ID string `json:"id"`
}

// PublishEvent pushes an appointment to the external calendar and returns the
// external event reference. Implements appointments.CalendarPublisher.
func (c *Client) PublishEvent(ctx context.Context, appt *appointments.Appointment) (string, error) {
	if appt == nil {
		return "", fmt.Errorf("calendar: appointment required")
	}

	body, err := json.Marshal(publishEventRequest{
		AppointmentID: appt.ID.String(),
		ResourceID:    appt.ResourceID,
		ServiceType:   appt.ServiceType,
		Date:          appt.Date,
		StartTime:     appt.StartTime,
		EndTime:       appt.EndTime,
		SubjectID:     appt.SubjectID,
	})
	if err != nil {
		return "", fmt.Errorf("calendar: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("calendar: build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calendar: publish request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("calendar: publish returned %d: %s", resp.StatusCode, string(raw))
	}

	var payload publishEventResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("calendar: decode publish response: %w", err)
	}
	if payload.ID == "" {
		return "", fmt.Errorf("calendar: publish response missing event id")
	}
	return payload.ID, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
