package ark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultBaseURL is the Ark API root for the cn-beijing region.
const DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// Static errors for Ark client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("ark: ARK_API_KEY is not set")
	// ErrTaskIDRequired is returned when the task ID is not provided.
	ErrTaskIDRequired = errors.New("ark: task ID is required")
	// ErrNoTaskIDReturned is returned when the create response contains no task ID.
	ErrNoTaskIDReturned = errors.New("ark: create task failed: no task ID returned")
	// ErrMalformedPayload is returned when a task payload does not match the
	// expected shape. The TaskStatus returned with it still carries Raw.
	ErrMalformedPayload = errors.New("ark: malformed task payload")
)

// RemoteError is returned when the provider rejects a request or cannot be
// reached. Its message is the provider's own error message when one was sent.
type RemoteError struct {
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Client defines the interface for interacting with the Ark task API.
type Client interface {
	// Submit creates a generation task and returns its handle.
	Submit(ctx context.Context, req GenerationRequest) (Submission, error)

	// Poll fetches the current status of a task.
	Poll(ctx context.Context, taskID string) (TaskStatus, error)
}

// HTTPClient is the HTTP implementation of the Ark Client interface.
// It performs exactly one HTTP call per operation.
type HTTPClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for bearer authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the Ark API.
func WithBaseURL(u string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = strings.TrimRight(u, "/")
	}
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) ClientOption {
	return func(hc *HTTPClient) {
		if model != "" {
			hc.defaultModel = model
		}
	}
}

// NewClient creates a new Ark HTTP client.
// The API key can be set via the WithAPIKey option. If not provided,
// it is read from the environment variable ARK_API_KEY.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL:      DefaultBaseURL,
		defaultModel: DefaultModel,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("ARK_API_KEY")
	}

	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// buildContent maps a request into the provider's content-list shape: one text
// block with the formatted prompt, then the role-tagged image blocks.
func buildContent(req GenerationRequest) []contentBlock {
	blocks := []contentBlock{{Type: "text", Text: FormatPrompt(req)}}

	if req.StartImage != "" {
		blocks = append(blocks, imageBlock(req.StartImage, RoleFirstFrame))
	}
	if req.EndImage != "" {
		blocks = append(blocks, imageBlock(req.EndImage, RoleLastFrame))
	}
	for _, img := range req.ReferenceImages {
		blocks = append(blocks, imageBlock(img, RoleReferenceImage))
	}

	return blocks
}

func imageBlock(u, role string) contentBlock {
	return contentBlock{Type: "image_url", ImageURL: &imageRef{URL: u}, Role: role}
}

// Submit creates a generation task.
func (c *HTTPClient) Submit(ctx context.Context, req GenerationRequest) (Submission, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	body := createTaskRequest{
		Model:           model,
		Content:         buildContent(req),
		ReturnLastFrame: req.ReturnLastFrame,
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return Submission{}, fmt.Errorf("ark: marshal request: %w", err)
	}

	raw, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/contents/generations/tasks", bodyBytes)
	if err != nil {
		return Submission{}, err
	}

	var resp createTaskResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Submission{}, fmt.Errorf("ark: unmarshal response: %w", err)
	}
	if resp.ID == "" {
		return Submission{}, ErrNoTaskIDReturned
	}

	return Submission{
		ID:              resp.ID,
		FormattedPrompt: body.Content[0].Text,
		Raw:             raw,
	}, nil
}

// Poll fetches the status of a task.
func (c *HTTPClient) Poll(ctx context.Context, taskID string) (TaskStatus, error) {
	if taskID == "" {
		return TaskStatus{}, ErrTaskIDRequired
	}

	endpoint := c.baseURL + "/contents/generations/tasks/" + url.PathEscape(taskID)

	raw, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TaskStatus{}, err
	}

	return ParseTaskStatus(raw)
}

// ParseTaskStatus decodes a raw task payload. A content field of an
// unrecognized shape decodes as KindAbsent, so the status stays usable and
// URL extraction reports ErrVideoURLNotFound.
func ParseTaskStatus(raw []byte) (TaskStatus, error) {
	var resp taskResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return TaskStatus{Raw: json.RawMessage(raw)}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	content, err := ParseContent(resp.Content)
	if err != nil {
		content = Content{Kind: KindAbsent}
	}

	result := TaskStatus{
		ID:      resp.ID,
		Status:  Status(strings.ToLower(resp.Status)),
		Content: content,
		Raw:     json.RawMessage(raw),
	}
	if resp.Usage != nil {
		result.TotalTokens = resp.Usage.TotalTokens
	}
	if result.Status == StatusFailed && resp.Error != nil {
		result.Error = resp.Error.Message
	}

	return result, nil
}

// doRequest performs a single HTTP request and returns the response body.
func (c *HTTPClient) doRequest(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("ark: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteError{Message: err.Error(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{
			StatusCode: resp.StatusCode,
			Message:    providerMessage(respBody, resp.StatusCode),
		}
	}

	return respBody, nil
}

// providerMessage returns error.message from an error body, or a generic
// message naming the status code.
func providerMessage(body []byte, status int) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return fmt.Sprintf("ark: request failed with status %d", status)
}
