package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mso4sc/experiments/pkg/log"
)

const apiPrefix = "/api/v3.1"

// HTTPClient implements Client against the orchestrator REST API.
type HTTPClient struct {
	baseURL    string
	username   string
	password   string
	tenant     string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*HTTPClient)

func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTPClient) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithBasicAuth sets the credentials sent with every request.
func WithBasicAuth(username, password string) Option {
	return func(c *HTTPClient) {
		c.username = username
		c.password = password
	}
}

func WithTenant(tenant string) Option {
	return func(c *HTTPClient) {
		c.tenant = tenant
	}
}

func NewHTTPClient(base string, opts ...Option) (*HTTPClient, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return nil, fmt.Errorf("orchestrator url is required")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid orchestrator url: %w", err)
	}

	c := &HTTPClient{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     log.WithModule("orchestrator"),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *HTTPClient) UploadBlueprint(ctx context.Context, source, blueprintID string) (*Blueprint, error) {
	query := url.Values{}
	var body io.Reader
	var contentType string

	switch {
	case isURL(source):
		query.Set("blueprint_archive_url", source)
	case isArchive(source):
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read blueprint archive: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/octet-stream"
	default:
		data, err := packBlueprint(source)
		if err != nil {
			return nil, err
		}
		query.Set("application_file_name", filepath.Base(source))
		body = bytes.NewReader(data)
		contentType = "application/octet-stream"
	}

	c.logger.InfoContext(ctx, "Uploading blueprint", "blueprint_id", blueprintID, "source", source)

	var bp Blueprint
	path := "/blueprints/" + url.PathEscape(blueprintID)
	if err := c.doRaw(ctx, "upload blueprint", http.MethodPut, path, query, body, contentType, &bp); err != nil {
		return nil, err
	}

	return &bp, nil
}

func (c *HTTPClient) GetBlueprint(ctx context.Context, blueprintID string) (*Blueprint, error) {
	var bp Blueprint
	if err := c.do(ctx, "get blueprint", http.MethodGet, "/blueprints/"+url.PathEscape(blueprintID), nil, nil, &bp); err != nil {
		return nil, err
	}

	return &bp, nil
}

func (c *HTTPClient) DeleteBlueprint(ctx context.Context, blueprintID string) error {
	return c.do(ctx, "delete blueprint", http.MethodDelete, "/blueprints/"+url.PathEscape(blueprintID), nil, nil, nil)
}

func (c *HTTPClient) CreateDeployment(ctx context.Context, blueprintID, deploymentID string, inputs map[string]any) (*Deployment, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}

	body := map[string]any{
		"blueprint_id":            blueprintID,
		"inputs":                  inputs,
		"skip_plugins_validation": true,
	}

	var dep Deployment
	if err := c.do(ctx, "create deployment", http.MethodPut, "/deployments/"+url.PathEscape(deploymentID), nil, body, &dep); err != nil {
		return nil, err
	}

	return &dep, nil
}

func (c *HTTPClient) DeleteDeployment(ctx context.Context, deploymentID string, force bool) error {
	query := url.Values{}
	query.Set("ignore_live_nodes", strconv.FormatBool(force))

	return c.do(ctx, "delete deployment", http.MethodDelete, "/deployments/"+url.PathEscape(deploymentID), query, nil, nil)
}

func (c *HTTPClient) StartExecution(ctx context.Context, deploymentID, workflow string, params map[string]any, force bool) (*Execution, error) {
	if params == nil {
		params = map[string]any{}
	}

	body := map[string]any{
		"deployment_id": deploymentID,
		"workflow_id":   workflow,
		"parameters":    params,
		"force":         force,
	}

	var exec Execution
	if err := c.do(ctx, "start execution", http.MethodPost, "/executions", nil, body, &exec); err != nil {
		return nil, err
	}

	return &exec, nil
}

func (c *HTTPClient) GetExecution(ctx context.Context, executionID string) (*Execution, error) {
	var exec Execution
	if err := c.do(ctx, "get execution", http.MethodGet, "/executions/"+url.PathEscape(executionID), nil, nil, &exec); err != nil {
		return nil, err
	}

	return &exec, nil
}

type eventListResponse struct {
	Items    []json.RawMessage `json:"items"`
	Metadata struct {
		Pagination struct {
			Total  int `json:"total"`
			Offset int `json:"offset"`
			Size   int `json:"size"`
		} `json:"pagination"`
	} `json:"metadata"`
}

// ListEvents returns events and logs of an execution, oldest first.
// Items that cannot be decoded are skipped with a warning; they still count
// as consumed so the caller's offset stays aligned with the remote stream.
func (c *HTTPClient) ListEvents(ctx context.Context, executionID string, offset, size int) (*EventPage, error) {
	if size <= 0 {
		size = DefaultPageSize
	}

	query := url.Values{}
	query.Set("execution_id", executionID)
	query.Set("_offset", strconv.Itoa(offset))
	query.Set("_size", strconv.Itoa(size))
	query.Set("_sort", "@timestamp")
	query.Set("include_logs", "true")

	var resp eventListResponse
	if err := c.do(ctx, "list events", http.MethodGet, "/events", query, nil, &resp); err != nil {
		return nil, err
	}

	page := &EventPage{Items: make([]Event, 0, len(resp.Items)), Total: resp.Metadata.Pagination.Total}
	for _, raw := range resp.Items {
		event, err := DecodeEvent(raw)
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping undecodable event", "execution_id", executionID, "error", err)
			page.Items = append(page.Items, &OpaqueEvent{raw: raw})

			continue
		}
		page.Items = append(page.Items, event)
	}

	return page, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, body any, v any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	return c.doRaw(ctx, op, method, path, query, reader, contentType, v)
}

func (c *HTTPClient) doRaw(ctx context.Context, op, method, path string, query url.Values, body io.Reader, contentType string, v any) error {
	endpoint := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if c.tenant != "" {
		req.Header.Set("Tenant", c.tenant)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return remoteError(op, resp)
	}

	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("orchestrator %s: decode response: %w", op, err)
	}

	return nil
}

func remoteError(op string, resp *http.Response) error {
	remote := &RemoteError{Op: op, StatusCode: resp.StatusCode}

	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		remote.Message = http.StatusText(resp.StatusCode)

		return remote
	}

	var payload struct {
		Message   string `json:"message"`
		ErrorCode string `json:"error_code"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		remote.Message = strings.TrimSpace(string(data))

		return remote
	}

	remote.Code = payload.ErrorCode
	remote.Message = payload.Message

	return remote
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func isArchive(source string) bool {
	lower := strings.ToLower(source)
	for _, ext := range []string{".tar.gz", ".tgz", ".tar.bz2", ".tar", ".zip"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}
