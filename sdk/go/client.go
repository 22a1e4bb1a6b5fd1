package rttsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal rttline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Event is one dated RTT code.
type Event struct {
	Date string `json:"date"`
	Code int    `json:"code"`
}

// Pathway is the record sent for validation. Dates may be in any accepted
// format; non-canonical ones are reported back as gaps.
type Pathway struct {
	PathwayNumber  string  `json:"pathway_number,omitempty"`
	NHSNumber      string  `json:"nhs_number,omitempty"`
	PatientName    string  `json:"patient_name,omitempty"`
	Gender         string  `json:"gender,omitempty"`
	Specialty      string  `json:"specialty,omitempty"`
	ClockStartDate string  `json:"clock_start_date,omitempty"`
	ClockStopDate  string  `json:"clock_stop_date,omitempty"`
	PauseWeeks     int     `json:"pause_weeks,omitempty"`
	Events         []Event `json:"events,omitempty"`
	CurrentCode    int     `json:"current_code,omitempty"`
	ClockStatus    string  `json:"clock_status,omitempty"`
	ElapsedWeeks   *int    `json:"elapsed_weeks,omitempty"`
	BreachFlag     string  `json:"breach_flag,omitempty"`
}

// ValidateRequest is one validation call. At least one of Record and
// LetterText must be set.
type ValidateRequest struct {
	Record     *Pathway          `json:"record,omitempty"`
	LetterText string            `json:"letter_text,omitempty"`
	PAS        map[string]string `json:"pas,omitempty"`
	Save       bool              `json:"save,omitempty"`
}

// Gap is one discrepancy found on a pathway.
type Gap struct {
	RuleID          string `json:"rule_id"`
	Field           string `json:"field"`
	Severity        string `json:"severity"`
	Message         string `json:"message"`
	AutoFixPossible bool   `json:"auto_fix_possible"`
}

// Fix is a proposed correction.
type Fix struct {
	RuleID            string  `json:"rule_id"`
	Field             string  `json:"field"`
	CurrentValue      string  `json:"current_value"`
	FixedValue        *string `json:"fixed_value"`
	Confidence        int     `json:"confidence"`
	ActionDescription string  `json:"action_description"`
	Disposition       string  `json:"disposition"`
}

// Clock is the recomputed clock state.
type Clock struct {
	ElapsedWeeks int    `json:"elapsed_weeks"`
	Breach       string `json:"breach_flag"`
	Status       string `json:"clock_status"`
	CurrentCode  int    `json:"current_code"`
}

// Result is a validation result (partial).
type Result struct {
	ID             string `json:"id"`
	PathwayNumber  string `json:"pathway_number"`
	Status         string `json:"status"`
	Severity       string `json:"severity"`
	Classification struct {
		Code   int    `json:"code"`
		Action string `json:"clock_action"`
		Rule   string `json:"rule"`
	} `json:"classification"`
	Clock       Clock     `json:"clock"`
	Gaps        []Gap     `json:"gaps"`
	Fixes       []Fix     `json:"fixes"`
	Comment     string    `json:"comment"`
	ValidatedAt time.Time `json:"validated_at"`
}

// Failure is a batch record that could not be scored.
type Failure struct {
	Index         int    `json:"index"`
	PathwayNumber string `json:"pathway_number"`
	Error         string `json:"error"`
}

// BatchReport summarises a batch run.
type BatchReport struct {
	Records           int            `json:"records"`
	Total             int            `json:"total"`
	Errors            int            `json:"errors"`
	PassRate          float64        `json:"pass_rate"`
	AutoFixRate       float64        `json:"auto_fix_rate"`
	StatusCounts      map[string]int `json:"status_counts"`
	SeverityBreakdown map[string]int `json:"severity_breakdown"`
	GapFrequency      map[string]int `json:"gap_frequency"`
	Results           []Result       `json:"results"`
	Failures          []Failure      `json:"failures"`
}

// LogEvent is one entry of the event log.
type LogEvent struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []LogEvent `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Validate runs a stateless validation.
func (c *Client) Validate(ctx context.Context, req ValidateRequest) (Result, error) {
	var resp Result
	err := c.do(ctx, http.MethodPost, "validate", req, &resp)
	return resp, err
}

// Batch validates many inputs. Records that fail are listed in
// BatchReport.Failures rather than failing the call.
func (c *Client) Batch(ctx context.Context, inputs []ValidateRequest, save bool) (BatchReport, error) {
	body := map[string]any{
		"inputs": inputs,
		"save":   save,
	}
	var resp BatchReport
	err := c.do(ctx, http.MethodPost, "batch", body, &resp)
	return resp, err
}

// SavePathway creates or replaces a stored pathway and reports whether it
// was new.
func (c *Client) SavePathway(ctx context.Context, p Pathway) (bool, error) {
	var resp struct {
		Created bool `json:"created"`
	}
	endpoint := fmt.Sprintf("pathways/%s", url.PathEscape(p.PathwayNumber))
	err := c.do(ctx, http.MethodPut, endpoint, p, &resp)
	return resp.Created, err
}

// ValidatePathway validates a stored pathway and records the result.
func (c *Client) ValidatePathway(ctx context.Context, number, letterText string, pas map[string]string) (Result, error) {
	body := map[string]any{}
	if letterText != "" {
		body["letter_text"] = letterText
	}
	if len(pas) > 0 {
		body["pas"] = pas
	}
	var resp Result
	endpoint := fmt.Sprintf("pathways/%s/validate", url.PathEscape(number))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// PathwayResults returns the validation history of a pathway, newest first.
func (c *Client) PathwayResults(ctx context.Context, number string, limit int) ([]Result, error) {
	var resp struct {
		Items []Result `json:"items"`
	}
	endpoint := fmt.Sprintf("pathways/%s/results", url.PathEscape(number))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
