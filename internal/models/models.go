// Package models defines the core data structures for the Avellano bot.
//
// It includes customers, orders, conversation logs, dashboard users and broadcasts,
// which are shared by the conversational flows, the store and the dashboard API.
package models

import "errors"

// Error variables for better error handling and testability
var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when an order state change is not permitted.
	ErrInvalidTransition = errors.New("invalid order state transition")
	// ErrCancelNoteRequired is returned when an order is canceled without a reason.
	ErrCancelNoteRequired = errors.New("a note is required to cancel an order")
	// ErrInvalidOrder is returned when an order has no lines or a line is malformed.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrEmptyRecipient is returned when a message has no destination.
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	// ErrConflict is returned when a unique record already exists.
	ErrConflict = errors.New("already exists")
)

// APIResponse is the envelope returned by every dashboard endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Total   *int        `json:"total,omitempty"`
}

// Success creates a successful response carrying data.
func Success(data interface{}) *APIResponse {
	return &APIResponse{Success: true, Data: data}
}

// SuccessList creates a successful response for a list with its total count.
func SuccessList(data interface{}, total int) *APIResponse {
	return &APIResponse{Success: true, Data: data, Total: &total}
}

// Error creates a failed response with a user-facing message.
func Error(message string) *APIResponse {
	return &APIResponse{Success: false, Error: message}
}
