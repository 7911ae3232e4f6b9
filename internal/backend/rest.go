package backend

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

// RESTClient calls a PostgREST endpoint (e.g. https://<project>.supabase.co/rest/v1).
// Implements the Client interface.
type RESTClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// postgrestError is the JSON error body PostgREST returns.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// NewRESTClient creates a PostgREST client for the project at projectURL.
// The "/rest/v1" suffix is added if missing.
func NewRESTClient(projectURL, apiKey string, timeout time.Duration) (*RESTClient, error) {
	u, err := url.Parse(strings.TrimRight(projectURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", projectURL)
	}
	if !strings.HasSuffix(u.Path, "/rest/v1") {
		u.Path += "/rest/v1"
	}
	return &RESTClient{
		baseURL: u.String(),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the client name.
func (c *RESTClient) Name() string { return "rest" }

// ExecSQL posts the script to /rpc/exec_sql.
func (c *RESTClient) ExecSQL(ctx context.Context, sql string) error {
	body, err := json.Marshal(map[string]string{"sql": sql})
	if err != nil {
		return fmt.Errorf("encode rpc body: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/rpc/"+ExecFunction, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// Probe issues GET /<table>?select=<column>&limit=0.
func (c *RESTClient) Probe(ctx context.Context, table, column string) error {
	if !validIdent(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	sel := "*"
	if column != "" {
		if !validIdent(column) {
			return fmt.Errorf("invalid column name %q", column)
		}
		sel = column
	}
	q := url.Values{}
	q.Set("select", sel)
	q.Set("limit", "0")
	req, err := c.newRequest(ctx, http.MethodGet, "/"+table+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

// Ping fetches the PostgREST root (the OpenAPI description).
func (c *RESTClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := c.newRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *RESTClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *RESTClient) do(req *http.Request) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	return decodeError(resp.StatusCode, body)
}

// decodeError turns a non-2xx PostgREST response into *Error.
func decodeError(status int, body []byte) *Error {
	var pe postgrestError
	if err := json.Unmarshal(body, &pe); err != nil || pe.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &Error{
			Kind:    Classify("", msg),
			Message: msg,
			Status:  status,
		}
	}
	return &Error{
		Kind:    Classify(pe.Code, pe.Message),
		Code:    pe.Code,
		Message: pe.Message,
		Details: pe.Details,
		Hint:    pe.Hint,
		Status:  status,
	}
}
