package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"main/utils"
)

const (
	calendarBaseURL       = "https://www.googleapis.com/calendar/v3/calendars/primary/events"
	calendarEventDuration = time.Hour
)

// ErrCalendarUnauthorized marks authorization failures so callers can prompt
// for credential re-acquisition instead of retrying blindly.
var ErrCalendarUnauthorized = errors.New("calendar authorization failed")

// CalendarClient mirrors task due dates into Google Calendar. All operations
// are advisory: callers treat failures as non-fatal.
type CalendarClient struct {
	token   string
	baseURL string
	client  *http.Client
}

type calendarEventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type calendarEventPayload struct {
	Summary     string            `json:"summary"`
	Description string            `json:"description,omitempty"`
	Start       calendarEventTime `json:"start"`
	End         calendarEventTime `json:"end"`
	Status      string            `json:"status,omitempty"`
}

type calendarEventResponse struct {
	ID string `json:"id"`
}

type calendarErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewCalendarClient creates a client around a bearer credential
func NewCalendarClient(token string) *CalendarClient {
	return &CalendarClient{
		token:   token,
		baseURL: calendarBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint (tests)
func (c *CalendarClient) SetBaseURL(url string) {
	c.baseURL = url
}

// CreateEvent inserts an event for a task due date and returns the event id
func (c *CalendarClient) CreateEvent(ctx context.Context, summary, description string, due time.Time) (string, error) {
	payload := buildEventPayload(summary, description, due)

	var created calendarEventResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL, payload, &created); err != nil {
		utils.TrackCalendarSync("create", "failure")
		return "", err
	}

	utils.TrackCalendarSync("create", "success")
	return created.ID, nil
}

// UpdateEvent patches an existing event with a new due date
func (c *CalendarClient) UpdateEvent(ctx context.Context, eventID, summary, description string, due time.Time) error {
	payload := buildEventPayload(summary, description, due)

	url := fmt.Sprintf("%s/%s", c.baseURL, eventID)
	if err := c.do(ctx, http.MethodPatch, url, payload, nil); err != nil {
		utils.TrackCalendarSync("update", "failure")
		return err
	}

	utils.TrackCalendarSync("update", "success")
	return nil
}

// DeleteEvent removes an event; an already-deleted event is not an error
func (c *CalendarClient) DeleteEvent(ctx context.Context, eventID string) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, eventID)
	err := c.do(ctx, http.MethodDelete, url, nil, nil)
	if err != nil && !errors.Is(err, errEventGone) {
		utils.TrackCalendarSync("delete", "failure")
		return err
	}

	utils.TrackCalendarSync("delete", "success")
	return nil
}

var errEventGone = errors.New("calendar event already gone")

func buildEventPayload(summary, description string, due time.Time) calendarEventPayload {
	start := due.UTC()
	return calendarEventPayload{
		Summary:     summary,
		Description: description,
		Start:       calendarEventTime{DateTime: start.Format(time.RFC3339)},
		End:         calendarEventTime{DateTime: start.Add(calendarEventDuration).Format(time.RFC3339)},
	}
}

func (c *CalendarClient) do(ctx context.Context, method, url string, payload interface{}, out interface{}) error {
	if c.token == "" {
		return ErrCalendarUnauthorized
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read calendar response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrCalendarUnauthorized
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return errEventGone
	case resp.StatusCode >= 400:
		var apiErr calendarErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("calendar API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("calendar API error (%d)", resp.StatusCode)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode calendar response: %w", err)
		}
	}

	return nil
}
