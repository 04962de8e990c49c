// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
)

// Error variables for common backend failures.
var (
	// ErrNetwork indicates no response reached the client at all.
	ErrNetwork = errors.New("network failure")

	// ErrAuthFailed indicates authentication was rejected even after the
	// single warm-up retry.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrPayloadTooLarge indicates the message or an attachment exceeded
	// the server's size limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrEmptyPayload indicates the server refused an empty message.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrResourceUnavailable indicates the selected tool or model is not
	// ready.
	ErrResourceUnavailable = errors.New("tool or model unavailable")

	// ErrMalformedResponse indicates a success status with a body that
	// could not be decoded.
	ErrMalformedResponse = errors.New("malformed response body")
)

// Machine-readable error codes the backend attaches to failure bodies.
const (
	codeSizeLimit    = "SIZE_LIMIT"
	codeAuthExpired  = "AUTH_EXPIRED"
	codeToolNotReady = "TOOL_NOT_READY"
	codeEmptyPayload = "EMPTY_PAYLOAD"
)

// APIError represents a structured error response from the backend.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Message)
}

// mapError converts a structured backend error to the matching
// sentinel so callers can branch with errors.Is.
func mapError(apiErr *APIError) error {
	switch apiErr.Code {
	case codeSizeLimit:
		return fmt.Errorf("%w: %s", ErrPayloadTooLarge, apiErr.Message)
	case codeAuthExpired:
		return fmt.Errorf("%w: %s", ErrAuthFailed, apiErr.Message)
	case codeToolNotReady:
		return fmt.Errorf("%w: %s", ErrResourceUnavailable, apiErr.Message)
	case codeEmptyPayload:
		return fmt.Errorf("%w: %s", ErrEmptyPayload, apiErr.Message)
	default:
		return apiErr
	}
}
