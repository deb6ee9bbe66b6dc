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

	"github.com/alfredjeanlab/tombstone/internal/api"
	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/tenancy"
)

// HTTPClient implements Client using HTTP/JSON.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	opts       Options
}

// NewHTTPClient creates a new HTTP client pointing at the given base URL
// (e.g. "http://localhost:8080").
func NewHTTPClient(baseURL string, opts Options) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		opts:       opts,
	}
}

// APIError is returned when the server responds with a non-2xx status code
// and no Result body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// newRequest builds a request with auth, tenant and content headers set.
func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	if c.opts.TenantID != "" {
		req.Header.Set(tenancy.Header, c.opts.TenantID)
	}
	return req, nil
}

// doJSON sends an HTTP request with an optional JSON body and decodes the
// JSON response into result (if non-nil).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if resp.StatusCode == http.StatusNoContent || result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// doResult posts keys to a soft-delete endpoint. The server answers with a
// Result body for every outcome of the operation itself, including 207 and
// 4xx/5xx statuses, so those are decoded rather than turned into APIErrors.
func (c *HTTPClient) doResult(ctx context.Context, path string, keys []model.Key) (model.Result, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, api.KeysRequest{Keys: keys})
	if err != nil {
		return model.Result{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Result{}, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Result{}, fmt.Errorf("reading response: %w", err)
	}

	var body struct {
		model.Result
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Error != "" || (body.Affected == nil && body.Errors == nil) {
		msg := body.Error
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return model.Result{}, fmt.Errorf("decoding response: unexpected body %q", msg)
		}
		return model.Result{}, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return body.Result, nil
}

// decodeAPIError reads an {"error": "..."} body into an APIError.
func decodeAPIError(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)
	var errResp api.ErrorResponse
	if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
}

// recordPath returns the URL path of a record.
func recordPath(key model.Key) string {
	return "/v1/records/" + url.PathEscape(key.Type) + "/" + url.PathEscape(key.ID)
}

// listPath appends an optional limit to a list endpoint path.
func listPath(prefix, typ string, limit int) string {
	path := prefix + url.PathEscape(typ)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return path
}

// --- Records ---

func (c *HTTPClient) CreateRecord(ctx context.Context, typ, id string, fields json.RawMessage) (*model.Record, error) {
	var rec model.Record
	req := api.CreateRecordRequest{Type: typ, ID: id, Fields: fields}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/records", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) GetRecord(ctx context.Context, key model.Key) (*model.Record, error) {
	var rec model.Record
	if err := c.doJSON(ctx, http.MethodGet, recordPath(key), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) ListRecords(ctx context.Context, typ string, limit int) ([]*model.Record, error) {
	var resp api.ListResponse
	if err := c.doJSON(ctx, http.MethodGet, listPath("/v1/records/", typ, limit), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (c *HTTPClient) UpdateFields(ctx context.Context, key model.Key, fields json.RawMessage, version int64) (*model.Record, error) {
	var rec model.Record
	req := api.UpdateFieldsRequest{Fields: fields, Version: version}
	if err := c.doJSON(ctx, http.MethodPatch, recordPath(key), req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// --- Soft delete ---

func (c *HTTPClient) SoftDelete(ctx context.Context, keys ...model.Key) (model.Result, error) {
	return c.doResult(ctx, "/v1/soft-delete", keys)
}

func (c *HTTPClient) ResetSoftDelete(ctx context.Context, keys ...model.Key) (model.Result, error) {
	return c.doResult(ctx, "/v1/soft-delete/reset", keys)
}

func (c *HTTPClient) HardDeleteIfSoftDeleted(ctx context.Context, keys ...model.Key) (model.Result, error) {
	return c.doResult(ctx, "/v1/soft-delete/purge", keys)
}

func (c *HTTPClient) ListSoftDeleted(ctx context.Context, typ string, limit int) ([]*model.Record, error) {
	var resp api.ListResponse
	if err := c.doJSON(ctx, http.MethodGet, listPath("/v1/trash/", typ, limit), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// --- Registry ---

func (c *HTTPClient) Relationships(ctx context.Context) ([]model.Relationship, error) {
	var resp api.RelationshipsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/relationships", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Relationships, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp api.HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Close is a no-op for HTTP clients.
func (c *HTTPClient) Close() error {
	return nil
}
