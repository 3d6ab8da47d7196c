// Package mcp exposes the media search index as a Model Context Protocol
// server over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Aman-CERP/indexedsearch/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeIndexUnavailable indicates the index cannot be used.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeNotFound indicates a media entry does not exist.
	ErrCodeNotFound = -32004

	// ErrCodeBusy indicates the index writer is held; retry later.
	ErrCodeBusy = -32005

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return mapAppError(appErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

func mapAppError(ae *apperrors.Error) *MCPError {
	message := ae.Message
	if message == "" {
		message = ae.Code
	}
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", message, ae.Suggestion)
	}

	switch {
	case ae.Code == apperrors.ErrCodeIndexUnavailable,
		ae.Code == apperrors.ErrCodeIndexClosed,
		ae.Code == apperrors.ErrCodeCorruptIndex,
		ae.Code == apperrors.ErrCodeSchemaMismatch:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	case ae.Code == apperrors.ErrCodeMediaNotFound:
		return &MCPError{Code: ErrCodeNotFound, Message: message}
	case ae.Category == apperrors.CategoryContention:
		return &MCPError{Code: ErrCodeBusy, Message: message}
	case ae.Category == apperrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
