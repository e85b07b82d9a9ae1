// Package ark provides an HTTP client for the Volcengine Ark video generation
// task API (Seedance models).
package ark

import (
	"encoding/json"
	"strconv"
	"strings"
)

// DefaultModel is the model used when a request does not name one.
const DefaultModel = "doubao-seedance-1-5-pro-251215"

// Status represents the status of an Ark generation task.
type Status string

// Ark task statuses.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if the status ends polling for the task.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Image roles understood by the provider.
const (
	RoleFirstFrame     = "first_frame"
	RoleLastFrame      = "last_frame"
	RoleReferenceImage = "reference_image"
)

// GenerationRequest describes one video generation submission.
type GenerationRequest struct {
	Prompt          string   `json:"prompt"`
	Resolution      string   `json:"resolution,omitempty"`
	Ratio           string   `json:"ratio,omitempty"`
	Duration        int      `json:"duration,omitempty"`
	Watermark       *bool    `json:"wm,omitempty"`
	CameraFixed     *bool    `json:"cf,omitempty"`
	Count           int      `json:"count,omitempty"`
	StartImage      string   `json:"startImage,omitempty"`
	EndImage        string   `json:"endImage,omitempty"`
	ReturnLastFrame bool     `json:"return_last_frame,omitempty"`
	ReferenceImages []string `json:"referenceImages,omitempty"`
	Model           string   `json:"model,omitempty"`
}

// FormatPrompt appends the generation parameters to the prompt as inline
// flag tokens. Order is fixed: --rs --rt --dur --wm --cf. Unset fields are
// omitted.
func FormatPrompt(req GenerationRequest) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	if req.Resolution != "" {
		b.WriteString(" --rs " + req.Resolution)
	}
	if req.Ratio != "" {
		b.WriteString(" --rt " + req.Ratio)
	}
	if req.Duration != 0 {
		b.WriteString(" --dur " + strconv.Itoa(req.Duration))
	}
	if req.Watermark != nil {
		b.WriteString(" --wm " + strconv.FormatBool(*req.Watermark))
	}
	if req.CameraFixed != nil {
		b.WriteString(" --cf " + strconv.FormatBool(*req.CameraFixed))
	}
	return b.String()
}

// Submission is the result of creating a task.
type Submission struct {
	// ID is the task handle assigned by the provider.
	ID string
	// FormattedPrompt is the prompt text actually sent, flags included.
	FormattedPrompt string
	// Raw is the provider's task-creation payload.
	Raw json.RawMessage
}

// TaskStatus is the result of polling a task.
type TaskStatus struct {
	ID          string
	Status      Status
	Content     Content
	TotalTokens int
	Error       string          // Provider error message (only set when Status is StatusFailed)
	Raw         json.RawMessage // Untouched provider payload
}

// contentBlock is one element of the request content list.
type contentBlock struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
	Role     string    `json:"role,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

// createTaskRequest represents the request body for the task creation endpoint.
type createTaskRequest struct {
	Model           string         `json:"model"`
	Content         []contentBlock `json:"content"`
	ReturnLastFrame bool           `json:"return_last_frame,omitempty"`
}

// createTaskResponse represents the response from the task creation endpoint.
type createTaskResponse struct {
	ID string `json:"id"`
}

// taskResponse represents the response from the task status endpoint.
type taskResponse struct {
	ID      string          `json:"id"`
	Model   string          `json:"model,omitempty"`
	Status  string          `json:"status"`
	Content json.RawMessage `json:"content,omitempty"`
	Usage   *taskUsage      `json:"usage,omitempty"`
	Error   *providerError  `json:"error,omitempty"`
}

type taskUsage struct {
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens"`
}

// providerError is the error object the provider attaches to failed tasks
// and to non-2xx responses.
type providerError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error *providerError `json:"error,omitempty"`
}
