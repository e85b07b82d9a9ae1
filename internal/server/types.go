// Package server provides the HTTP server for the Seedance Studio API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"github.com/maauso/seedance-studio/internal/ark"
	"github.com/maauso/seedance-studio/internal/session"
)

// GenerateRequest is the HTTP request body for submitting one generation task.
// Fields are forwarded as given; the provider decides what it accepts.
type GenerateRequest struct {
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

func (r GenerateRequest) toArk() ark.GenerationRequest {
	return ark.GenerationRequest{
		Prompt:          r.Prompt,
		Resolution:      r.Resolution,
		Ratio:           r.Ratio,
		Duration:        r.Duration,
		Watermark:       r.Watermark,
		CameraFixed:     r.CameraFixed,
		Count:           r.Count,
		StartImage:      r.StartImage,
		EndImage:        r.EndImage,
		ReturnLastFrame: r.ReturnLastFrame,
		ReferenceImages: r.ReferenceImages,
		Model:           r.Model,
	}
}

// StitchRequest is the HTTP request body for stitching videos.
// The only check, at least two URLs, belongs to the stitch service.
type StitchRequest struct {
	VideoURLs []string `json:"videoUrls"`
}

// StitchResponse is the HTTP response after stitching.
type StitchResponse struct {
	// URL is the stitched video: /temp/<file> or a published S3 URL.
	URL string `json:"url"`
}

// StartFlowRequest is the HTTP request body for starting a session flow.
type StartFlowRequest struct {
	Mode            string         `json:"mode" validate:"required,oneof=single continuous reference"`
	Prompt          string         `json:"prompt,omitempty"`
	Prompts         []string       `json:"prompts,omitempty" validate:"omitempty,dive,required"`
	ReferenceImages []string       `json:"referenceImages,omitempty" validate:"omitempty,max=4,dive,required"`
	Params          session.Params `json:"params"`
}

func (r StartFlowRequest) toInput() session.Input {
	return session.Input{
		Mode:            session.Mode(r.Mode),
		Prompt:          r.Prompt,
		Prompts:         r.Prompts,
		ReferenceImages: r.ReferenceImages,
		Params:          r.Params,
	}
}

// SessionResponse is the HTTP response for creating a session.
type SessionResponse struct {
	// ID is the unique identifier for the session.
	ID string `json:"id"`
	// Status is the session status.
	Status string `json:"status"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
