// Package client is a typed HTTP client for the creditflow API, used by the
// triage screen and by the integration tests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"creditflow/internal/models"
	"creditflow/internal/money"
	"creditflow/internal/services"
)

// DefaultSessionCookie is the cookie the API reads the session token from.
const DefaultSessionCookie = "session"

// ErrUnauthorized is returned when the session is missing or expired. The
// API either answers 401 or, behind the auth proxy, redirects to an HTML
// login page.
var ErrUnauthorized = errors.New("session expired or missing")

var errUnexpectedStatus = errors.New("unexpected http status code")

// APIError is a non-2xx response carrying the API's error body.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.StatusCode)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// APIClient talks to the credit endpoints.
type APIClient struct {
	HTTPClient    *http.Client
	BasePath      *url.URL
	SessionToken  string
	SessionCookie string
}

// NewAPIClient creates a new APIClient. basePath is the API root, for
// example http://localhost:8080/api.
func NewAPIClient(httpClient *http.Client, basePath, sessionToken string) (*APIClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	u, err := url.Parse(basePath)
	if err != nil {
		return nil, fmt.Errorf("error formatting base path %q: %w", basePath, err)
	}
	return &APIClient{
		HTTPClient:    httpClient,
		BasePath:      u,
		SessionToken:  sessionToken,
		SessionCookie: DefaultSessionCookie,
	}, nil
}

// AllocateRequest is the wire body of POST /credits/allocate.
type AllocateRequest struct {
	CreditID      string      `json:"credit_id"`
	Action        string      `json:"action"`
	Amount        money.Cents `json:"amount"`
	OriginalID    string      `json:"original_id,omitempty"`
	SpreadItemID  string      `json:"spread_item_id,omitempty"`
	CategoryID    string      `json:"category_id,omitempty"`
	GoalID        string      `json:"goal_id,omitempty"`
	Label         string      `json:"label,omitempty"`
	ParentID      string      `json:"parent_id,omitempty"`
	ResetExisting bool        `json:"reset_existing,omitempty"`
}

// AllocateResponse is the body returned by a successful allocation.
type AllocateResponse struct {
	OK         bool                `json:"ok"`
	Allocation *models.Allocation  `json:"allocation"`
	Credit     *models.Transaction `json:"credit"`
	Complete   bool                `json:"complete"`
	Reverted   []models.Allocation `json:"reverted,omitempty"`
}

// SearchParams are the query parameters of GET /transactions/search.
type SearchParams struct {
	Type              string
	Days              int
	Query             string
	CategoryID        string
	CreditDescription string
	CreditAmount      money.Cents
	Limit             int
}

// GetUnallocated fetches the triage view for a YYYY-MM month. An empty month
// asks for the current one.
func (c *APIClient) GetUnallocated(ctx context.Context, month string) (*services.TriageView, error) {
	q := url.Values{}
	if month != "" {
		q.Set("month", month)
	}
	var view services.TriageView
	if err := c.do(ctx, http.MethodGet, "/credits/unallocated", q, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Allocate assigns part of a credit.
func (c *APIClient) Allocate(ctx context.Context, req AllocateRequest) (*AllocateResponse, error) {
	var resp AllocateResponse
	if err := c.do(ctx, http.MethodPost, "/credits/allocate", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Undo reverts an allocation. An allocation that is already reverted counts
// as success, so a retried undo is harmless.
func (c *APIClient) Undo(ctx context.Context, allocationID string) error {
	body := map[string]string{"allocation_id": allocationID}
	err := c.do(ctx, http.MethodDelete, "/credits/allocate", nil, body, nil)
	if IsCode(err, "ALREADY_REVERTED") {
		return nil
	}
	return err
}

// ResetCredit sends an income transaction back to triage.
func (c *APIClient) ResetCredit(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var resp struct {
		Transaction *models.Transaction `json:"transaction"`
	}
	body := map[string]string{"transaction_id": transactionID}
	if err := c.do(ctx, http.MethodPost, "/credits/reset", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Transaction, nil
}

// Search looks for expenses a credit might settle.
func (c *APIClient) Search(ctx context.Context, params SearchParams) (*services.SearchResult, error) {
	q := url.Values{}
	q.Set("type", params.Type)
	if params.Days > 0 {
		q.Set("days", strconv.Itoa(params.Days))
	}
	if params.Query != "" {
		q.Set("q", params.Query)
	}
	if params.CategoryID != "" {
		q.Set("category_id", params.CategoryID)
	}
	if params.CreditDescription != "" {
		q.Set("credit_description", params.CreditDescription)
	}
	if params.CreditAmount > 0 {
		q.Set("credit_amount", params.CreditAmount.String())
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	var result services.SearchResult
	if err := c.do(ctx, http.MethodGet, "/transactions/search", q, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	u := c.BasePath.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("error marshaling request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.SessionToken != "" {
		req.AddCookie(&http.Cookie{Name: c.SessionCookie, Value: c.SessionToken})
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || isHTML(resp.Header.Get("Content-Type")) {
		return ErrUnauthorized
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
		}
		return apiErr
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("error unmarshaling response body: %w", err)
	}
	return nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/html"
}
