// Package mcp exposes search and indexing as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
	"github.com/Aman-CERP/labsearch/internal/index"
)

// MCP error codes. The -320xx range is reserved for the server.
const (
	ErrCodeProviderUnavailable = -32002
	ErrCodeTimeout             = -32003
	ErrCodeIndexBusy           = -32004
	ErrCodeConfiguration       = -32005
	ErrCodeStorage             = -32006

	// Standard JSON-RPC codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for the in-process tool dispatcher.
var (
	ErrToolNotFound  = errors.New("tool not found")
	ErrInvalidParams = errors.New("invalid parameters")
)

// MCPError is a protocol error with a code and a client-facing message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements error.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an internal error to an MCP error. Messages include
// the suggestion carried by the error, if any.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var me *MCPError
	if errors.As(err, &me) {
		return me
	}
	if ae, ok := apperrors.As(err); ok {
		return mapAppError(ae)
	}

	switch {
	case errors.Is(err, index.ErrAlreadyRunning):
		return &MCPError{Code: ErrCodeIndexBusy, Message: "Indexing is already in progress. Try again when it finishes."}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError returns an invalid-params error with msg.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError returns an error for an unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

func mapAppError(ae *apperrors.AppError) *MCPError {
	message := ae.Message
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", ae.Message, ae.Suggestion)
	}

	switch ae.Category {
	case apperrors.CategoryConfig:
		return &MCPError{Code: ErrCodeConfiguration, Message: message}
	case apperrors.CategoryStorage:
		return &MCPError{Code: ErrCodeStorage, Message: message}
	case apperrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeProviderUnavailable, Message: message}
	case apperrors.CategoryValidation:
		if ae.Code == apperrors.ErrCodeMalformedResponse {
			return &MCPError{Code: ErrCodeProviderUnavailable, Message: message}
		}
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
