package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/seedance-studio/internal/ark"
)

// ReferenceModel is the only model that accepts reference images. Reference
// flows always use it, whatever model the caller selected.
const ReferenceModel = "doubao-seedance-1-0-lite-i2v-250428"

// Limits on flow inputs.
const (
	MaxCount           = 4
	MinSegments        = 2
	MaxReferenceImages = 4
)

// ErrInvalidInput is wrapped by every Input validation failure.
var ErrInvalidInput = errors.New("invalid input")

// Params are the generation parameters shared by every request of a flow.
type Params struct {
	Resolution  string `json:"resolution,omitempty"`
	Ratio       string `json:"ratio,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	Watermark   *bool  `json:"wm,omitempty"`
	CameraFixed *bool  `json:"cf,omitempty"`
	// Count is the number of clips in single mode. Other modes ignore it.
	Count      int    `json:"count,omitempty"`
	StartImage string `json:"startImage,omitempty"`
	EndImage   string `json:"endImage,omitempty"`
	Model      string `json:"model,omitempty"`
}

// Input is everything needed to run one flow.
type Input struct {
	Mode Mode `json:"mode"`
	// Prompt drives single and reference flows.
	Prompt string `json:"prompt,omitempty"`
	// Prompts holds one prompt per segment in continuous flows.
	Prompts         []string `json:"prompts,omitempty"`
	ReferenceImages []string `json:"referenceImages,omitempty"`
	Params          Params   `json:"params"`
}

// Validate checks the input for its mode.
func (in Input) Validate() error {
	switch in.Mode {
	case ModeSingle:
		if strings.TrimSpace(in.Prompt) == "" {
			return fmt.Errorf("%w: prompt is required", ErrInvalidInput)
		}
		if in.Params.Count < 0 || in.Params.Count > MaxCount {
			return fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidInput, MaxCount)
		}
	case ModeContinuous:
		if len(in.Prompts) < MinSegments {
			return fmt.Errorf("%w: continuous mode needs at least %d prompts", ErrInvalidInput, MinSegments)
		}
		for i, p := range in.Prompts {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("%w: prompt %d is empty", ErrInvalidInput, i+1)
			}
		}
	case ModeReference:
		if strings.TrimSpace(in.Prompt) == "" {
			return fmt.Errorf("%w: prompt is required", ErrInvalidInput)
		}
		if len(in.ReferenceImages) == 0 {
			return fmt.Errorf("%w: At least one reference image is required", ErrInvalidInput)
		}
		if len(in.ReferenceImages) > MaxReferenceImages {
			return fmt.Errorf("%w: at most %d reference images are allowed", ErrInvalidInput, MaxReferenceImages)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, in.Mode)
	}
	return nil
}

// count returns the number of clips a single flow submits.
func (in Input) count() int {
	if in.Params.Count == 0 {
		return 1
	}
	return in.Params.Count
}

// request builds the per-task request. Count is always 1 on the wire.
func (p Params) request(prompt string) ark.GenerationRequest {
	return ark.GenerationRequest{
		Prompt:      prompt,
		Resolution:  p.Resolution,
		Ratio:       p.Ratio,
		Duration:    p.Duration,
		Watermark:   p.Watermark,
		CameraFixed: p.CameraFixed,
		Count:       1,
		StartImage:  p.StartImage,
		EndImage:    p.EndImage,
		Model:       p.Model,
	}
}
