// Package client is a typed HTTP client for the loadboard API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/loads"
	"github.com/wolfeidau/loadboard/internal/models"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
	// Transport signs requests. A nil Transport sends them unauthenticated.
	Transport http.RoundTripper
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
	}
}

// Client calls the loadboard JSON API. API errors are returned as
// *apperr.Error so callers can match them with errors.Is.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server in cfg.
func New(cfg Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
	}
}

// CreateLoad creates a draft load.
func (c *Client) CreateLoad(ctx context.Context, orgID uuid.UUID, in loads.CreateInput) (*models.Load, error) {
	var out models.Load
	if err := c.do(ctx, http.MethodPost, orgPath(orgID, "loads"), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLoad fetches one load.
func (c *Client) GetLoad(ctx context.Context, orgID, loadID uuid.UUID) (*models.Load, error) {
	var out models.Load
	if err := c.do(ctx, http.MethodGet, orgPath(orgID, "loads", loadID.String()), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListLoads lists an organization's loads, newest status change first.
func (c *Client) ListLoads(ctx context.Context, orgID uuid.UUID, f loads.ListFilter) ([]*models.Load, error) {
	var out []*models.Load
	if err := c.do(ctx, http.MethodGet, orgPath(orgID, "loads"), filterQuery(f), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListDriverLoads lists the loads assigned to a driver.
func (c *Client) ListDriverLoads(ctx context.Context, orgID, driverID uuid.UUID, f loads.ListFilter) ([]*models.Load, error) {
	var out []*models.Load
	if err := c.do(ctx, http.MethodGet, orgPath(orgID, "drivers", driverID.String(), "loads"), filterQuery(f), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AssignLoad gives a load to a driver.
func (c *Client) AssignLoad(ctx context.Context, orgID, loadID, driverID uuid.UUID) (*models.Load, error) {
	var out models.Load
	body := map[string]uuid.UUID{"driverId": driverID}
	if err := c.do(ctx, http.MethodPost, orgPath(orgID, "loads", loadID.String(), "assign"), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransitionLoad applies a lifecycle action other than assign.
func (c *Client) TransitionLoad(ctx context.Context, orgID, loadID uuid.UUID, action loads.Action, reason string) (*models.Load, error) {
	var body any
	if reason != "" {
		body = loads.TransitionInput{Reason: reason}
	}
	var out models.Load
	if err := c.do(ctx, http.MethodPost, orgPath(orgID, "loads", loadID.String(), "transitions", string(action)), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadEvents returns a load's history, oldest first.
func (c *Client) LoadEvents(ctx context.Context, orgID, loadID uuid.UUID) ([]*models.LoadEvent, error) {
	var out []*models.LoadEvent
	if err := c.do(ctx, http.MethodGet, orgPath(orgID, "loads", loadID.String(), "events"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LookupUser finds a user by email.
func (c *Client) LookupUser(ctx context.Context, email string) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, "/v1/users/lookup", url.Values{"email": {email}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func orgPath(orgID uuid.UUID, parts ...string) string {
	return "/v1/orgs/" + orgID.String() + "/" + strings.Join(parts, "/")
}

func filterQuery(f loads.ListFilter) url.Values {
	q := url.Values{}
	if !f.From.IsZero() {
		q.Set("from", f.From.Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q.Set("to", f.To.Format(time.RFC3339))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

type errorResponse struct {
	Error struct {
		Code    apperr.Code       `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("api call")

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er errorResponse
	if err := json.Unmarshal(data, &er); err != nil || er.Error.Code == "" {
		return &apperr.Error{
			Code:    apperr.CodeStorageFailure,
			Message: fmt.Sprintf("unexpected response %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	return &apperr.Error{
		Code:    er.Error.Code,
		Message: er.Error.Message,
		Fields:  er.Error.Fields,
	}
}
